package telemetry

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/biostream/sentinel/internal/shared/errors"
)

// Validation bounds. Heart rate has two bands: the wide range is what the
// sensor can legally report, the tracking band is what routine anomaly
// scoring can handle. Readings inside the legal range but outside the
// tracking band signal probable sensor fault or an emergency needing a
// different handling path, so they are rejected rather than miscategorized.
const (
	minIdentifierLen = 3
	maxIdentifierLen = 50

	MinHeartRate = 0
	MaxHeartRate = 300

	MinTrackingHeartRate = 30
	MaxTrackingHeartRate = 250

	minPercent = 0.0
	maxPercent = 100.0
)

// Validate checks the structural and physiological bounds of a candidate
// reading. On success it returns a validated copy with a defaulted timestamp;
// the input is never mutated and no side effects occur. A reading failing any
// bound is rejected before it can be scored or stored.
func Validate(r Reading) (Reading, error) {
	if l := utf8.RuneCountInString(r.DeviceID); l < minIdentifierLen || l > maxIdentifierLen {
		return Reading{}, invalidField("device_id",
			fmt.Sprintf("must be %d-%d characters, got %d", minIdentifierLen, maxIdentifierLen, l))
	}
	if l := utf8.RuneCountInString(r.PatientID); l < minIdentifierLen || l > maxIdentifierLen {
		return Reading{}, invalidField("patient_id",
			fmt.Sprintf("must be %d-%d characters, got %d", minIdentifierLen, maxIdentifierLen, l))
	}
	if r.HeartRate < MinHeartRate || r.HeartRate > MaxHeartRate {
		return Reading{}, invalidField("heart_rate",
			fmt.Sprintf("must be between %d and %d, got %d", MinHeartRate, MaxHeartRate, r.HeartRate))
	}
	if r.HeartRate < MinTrackingHeartRate || r.HeartRate > MaxTrackingHeartRate {
		return Reading{}, invalidField("heart_rate",
			fmt.Sprintf("heart rate %d is outside physiological tracking limits (%d-%d)",
				r.HeartRate, MinTrackingHeartRate, MaxTrackingHeartRate))
	}
	if r.SpO2 < minPercent || r.SpO2 > maxPercent {
		return Reading{}, invalidField("spo2",
			fmt.Sprintf("must be between %.0f and %.0f, got %v", minPercent, maxPercent, r.SpO2))
	}
	if r.BatteryLevel < minPercent || r.BatteryLevel > maxPercent {
		return Reading{}, invalidField("battery_level",
			fmt.Sprintf("must be between %.0f and %.0f, got %v", minPercent, maxPercent, r.BatteryLevel))
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return r, nil
}

func invalidField(field, constraint string) *errors.AppError {
	return errors.Validation(
		fmt.Sprintf("invalid %s: %s", field, constraint),
		map[string]string{"field": field, "constraint": constraint},
	)
}

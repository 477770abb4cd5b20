package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/biostream/sentinel/internal/shared/errors"
)

func validReading() Reading {
	return Reading{
		DeviceID:     "WEARABLE-001",
		PatientID:    "PATIENT-X",
		Timestamp:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		HeartRate:    72,
		SpO2:         98.5,
		BatteryLevel: 85.0,
	}
}

func TestValidateAcceptsNormalReading(t *testing.T) {
	validated, err := Validate(validReading())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validated.HeartRate != 72 {
		t.Errorf("validated reading mutated: %+v", validated)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Reading)
		wantField string
	}{
		{"device id too short", func(r *Reading) { r.DeviceID = "AB" }, "device_id"},
		{"device id too long", func(r *Reading) { r.DeviceID = strings.Repeat("X", 51) }, "device_id"},
		{"patient id too short", func(r *Reading) { r.PatientID = "AB" }, "patient_id"},
		{"patient id missing", func(r *Reading) { r.PatientID = "" }, "patient_id"},
		{"heart rate negative", func(r *Reading) { r.HeartRate = -1 }, "heart_rate"},
		{"heart rate above legal range", func(r *Reading) { r.HeartRate = 301 }, "heart_rate"},
		{"heart rate at legal max but outside tracking band", func(r *Reading) { r.HeartRate = 300 }, "heart_rate"},
		{"heart rate below tracking band", func(r *Reading) { r.HeartRate = 29 }, "heart_rate"},
		{"heart rate above tracking band", func(r *Reading) { r.HeartRate = 251 }, "heart_rate"},
		{"spo2 negative", func(r *Reading) { r.SpO2 = -0.1 }, "spo2"},
		{"spo2 above 100", func(r *Reading) { r.SpO2 = 100.1 }, "spo2"},
		{"battery negative", func(r *Reading) { r.BatteryLevel = -5 }, "battery_level"},
		{"battery above 100", func(r *Reading) { r.BatteryLevel = 101 }, "battery_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReading()
			tt.mutate(&r)

			_, err := Validate(r)
			if err == nil {
				t.Fatal("expected validation error")
			}
			appErr, ok := err.(*errors.AppError)
			if !ok {
				t.Fatalf("expected *errors.AppError, got %T", err)
			}
			if !errors.IsValidation(appErr) {
				t.Errorf("expected validation error type, got code %s", appErr.Code)
			}
			if appErr.Details["field"] != tt.wantField {
				t.Errorf("offending field = %q, want %q", appErr.Details["field"], tt.wantField)
			}
		})
	}
}

func TestValidateIdentifierLengthInRunes(t *testing.T) {
	// 50 two-byte runes: inside the character limit even though the byte
	// length is double it.
	r := validReading()
	r.DeviceID = strings.Repeat("ü", 50)
	if _, err := Validate(r); err != nil {
		t.Errorf("50-character multibyte device id should be accepted: %v", err)
	}

	r = validReading()
	r.PatientID = "üü"
	_, err := Validate(r)
	if err == nil {
		t.Fatal("2-character patient id should be rejected regardless of byte length")
	}
	if appErr, ok := err.(*errors.AppError); !ok || appErr.Details["field"] != "patient_id" {
		t.Errorf("expected patient_id validation error, got %v", err)
	}
}

func TestValidateTrackingBandBoundaries(t *testing.T) {
	for _, hr := range []int{30, 250} {
		r := validReading()
		r.HeartRate = hr
		if _, err := Validate(r); err != nil {
			t.Errorf("heart rate %d should be inside the tracking band: %v", hr, err)
		}
	}
}

func TestValidateDefaultsTimestamp(t *testing.T) {
	r := validReading()
	r.Timestamp = time.Time{}

	before := time.Now().UTC()
	validated, err := Validate(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validated.Timestamp.Before(before) {
		t.Errorf("timestamp not defaulted to ingestion time: %v", validated.Timestamp)
	}
}

package telemetry

import (
	"time"

	"github.com/biostream/sentinel/internal/anomaly"
)

// Reading is one vital-sign sample from a wearable device, as received from
// the transport layer. PatientID is never persisted in raw form.
type Reading struct {
	DeviceID     string    `json:"device_id"`
	PatientID    string    `json:"patient_id"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
	HeartRate    int       `json:"heart_rate"`
	SpO2         float64   `json:"spo2"`
	BatteryLevel float64   `json:"battery_level"`
}

// HotRecord is the persisted hot-store row for one accepted reading. Created
// exactly once per reading, never updated or deleted by the pipeline.
type HotRecord struct {
	ID            int64     `json:"id"`
	DeviceID      string    `json:"device_id"`
	PatientIDHash string    `json:"patient_id_hash"`
	Timestamp     time.Time `json:"timestamp"`
	HeartRate     int       `json:"heart_rate"`
	SpO2          float64   `json:"spo2"`
	BatteryLevel  float64   `json:"battery_level"`
}

// AlertRecord is the persisted alert row for a HIGH-risk reading. It exists
// if and only if its telemetry row does; the two are written in one
// transaction.
type AlertRecord struct {
	ID           int64            `json:"id"`
	TelemetryID  int64            `json:"telemetry_id"`
	DeviceID     string           `json:"device_id"`
	AnomalyScore float64          `json:"anomaly_score"`
	RiskLevel    anomaly.RiskTier `json:"risk_level"`
	DetectedAt   time.Time        `json:"detected_at"`
}

// ColdBatchEntry mirrors the subset of HotRecord fields archived to the cold
// store, plus the computed risk tier.
type ColdBatchEntry struct {
	DeviceID      string
	PatientIDHash string
	Timestamp     time.Time
	HeartRate     int
	SpO2          float64
	RiskLevel     anomaly.RiskTier
}

// IngestResult reports the outcome of an accepted reading.
type IngestResult struct {
	TelemetryID int64
	RiskLevel   anomaly.RiskTier
	Score       float64
}

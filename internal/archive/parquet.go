package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/biostream/sentinel/internal/telemetry"
)

// batchRow is the self-describing columnar schema of one archived entry.
type batchRow struct {
	DeviceID      string    `parquet:"device_id"`
	PatientIDHash string    `parquet:"patient_id_hash"`
	Timestamp     time.Time `parquet:"timestamp"`
	HeartRate     int32     `parquet:"heart_rate"`
	SpO2          float64   `parquet:"spo2"`
	RiskLevel     string    `parquet:"risk_level"`
}

// EncodeBatch serializes the ordered batch into a single parquet blob.
func EncodeBatch(entries []telemetry.ColdBatchEntry) ([]byte, error) {
	rows := make([]batchRow, len(entries))
	for i, e := range entries {
		rows[i] = batchRow{
			DeviceID:      e.DeviceID,
			PatientIDHash: e.PatientIDHash,
			Timestamp:     e.Timestamp,
			HeartRate:     int32(e.HeartRate),
			SpO2:          e.SpO2,
			RiskLevel:     string(e.RiskLevel),
		}
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[batchRow](&buf)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet blob: %w", err)
	}
	return buf.Bytes(), nil
}

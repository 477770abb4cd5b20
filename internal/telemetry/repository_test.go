package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biostream/sentinel/internal/anomaly"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock, NewPostgresRepository(mock)
}

func TestSaveReadingWithoutAlert(t *testing.T) {
	mock, repo := newMockRepo(t)
	defer mock.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &HotRecord{
		DeviceID:      "WEARABLE-001",
		PatientIDHash: "abc123",
		Timestamp:     ts,
		HeartRate:     72,
		SpO2:          98.5,
		BatteryLevel:  85.0,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO device_telemetry`).
		WithArgs("WEARABLE-001", "abc123", ts, 72, 98.5, 85.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	err := repo.SaveReading(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReadingWithAlertSameTransaction(t *testing.T) {
	mock, repo := newMockRepo(t)
	defer mock.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	detected := ts.Add(time.Second)
	rec := &HotRecord{
		DeviceID:      "WEARABLE-002",
		PatientIDHash: "def456",
		Timestamp:     ts,
		HeartRate:     240,
		SpO2:          70.0,
		BatteryLevel:  5.0,
	}
	alert := &AlertRecord{
		DeviceID:     "WEARABLE-002",
		AnomalyScore: -0.31,
		RiskLevel:    anomaly.TierHigh,
		DetectedAt:   detected,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO device_telemetry`).
		WithArgs("WEARABLE-002", "def456", ts, 240, 70.0, 5.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`INSERT INTO anomalies`).
		WithArgs(int64(11), "WEARABLE-002", -0.31, anomaly.TierHigh, detected).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.SaveReading(context.Background(), rec, alert)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.ID)
	assert.Equal(t, int64(11), alert.TelemetryID, "alert must reference the telemetry row")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReadingAlertFailureRollsBack(t *testing.T) {
	mock, repo := newMockRepo(t)
	defer mock.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &HotRecord{DeviceID: "WEARABLE-003", PatientIDHash: "xyz", Timestamp: ts, HeartRate: 200, SpO2: 80, BatteryLevel: 10}
	alert := &AlertRecord{DeviceID: "WEARABLE-003", AnomalyScore: -0.2, RiskLevel: anomaly.TierHigh, DetectedAt: ts}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO device_telemetry`).
		WithArgs("WEARABLE-003", "xyz", ts, 200, 80.0, 10.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO anomalies`).
		WithArgs(int64(3), "WEARABLE-003", -0.2, anomaly.TierHigh, ts).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.SaveReading(context.Background(), rec, alert)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReadingInsertFailure(t *testing.T) {
	mock, repo := newMockRepo(t)
	defer mock.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &HotRecord{DeviceID: "WEARABLE-004", PatientIDHash: "h", Timestamp: ts, HeartRate: 70, SpO2: 98, BatteryLevel: 50}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO device_telemetry`).
		WithArgs("WEARABLE-004", "h", ts, 70, 98.0, 50.0).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.SaveReading(context.Background(), rec, nil)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentTelemetry(t *testing.T) {
	mock, repo := newMockRepo(t)
	defer mock.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "device_id", "patient_id_hash", "timestamp", "heart_rate", "spo2", "battery_level"}).
		AddRow(int64(2), "WEARABLE-001", "abc", ts, 75, 97.0, 80.0).
		AddRow(int64(1), "WEARABLE-001", "abc", ts.Add(-time.Minute), 72, 98.0, 81.0)

	mock.ExpectQuery(`SELECT (.+) FROM device_telemetry`).
		WithArgs("WEARABLE-001", 10).
		WillReturnRows(rows)

	records, err := repo.RecentTelemetry(context.Background(), "WEARABLE-001", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].ID)
	assert.Equal(t, 75, records[0].HeartRate)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentAlerts(t *testing.T) {
	mock, repo := newMockRepo(t)
	defer mock.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "telemetry_id", "device_id", "anomaly_score", "risk_level", "detected_at"}).
		AddRow(int64(5), int64(42), "WEARABLE-001", -0.22, anomaly.TierHigh, ts)

	mock.ExpectQuery(`SELECT (.+) FROM anomalies`).
		WithArgs("WEARABLE-001", 5).
		WillReturnRows(rows)

	alerts, err := repo.RecentAlerts(context.Background(), "WEARABLE-001", 5)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, anomaly.TierHigh, alerts[0].RiskLevel)
	assert.Equal(t, int64(42), alerts[0].TelemetryID)

	require.NoError(t, mock.ExpectationsWereMet())
}

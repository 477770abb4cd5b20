package telemetry

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/biostream/sentinel/internal/shared/errors"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements the hot store on PostgreSQL
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL hot-store repository
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveReading inserts the telemetry row and, when alert is non-nil, the alert
// row referencing it, inside a single transaction. Either both rows exist
// afterwards or neither does. On success rec.ID (and alert.TelemetryID) are
// populated.
func (r *PostgresRepository) SaveReading(ctx context.Context, rec *HotRecord, alert *AlertRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO device_telemetry
			(device_id, patient_id_hash, timestamp, heart_rate, spo2, battery_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.DeviceID, rec.PatientIDHash, rec.Timestamp,
		rec.HeartRate, rec.SpO2, rec.BatteryLevel,
	).Scan(&rec.ID)
	if err != nil {
		return errors.Wrap(err, "failed to insert telemetry row")
	}

	if alert != nil {
		alert.TelemetryID = rec.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO anomalies
				(telemetry_id, device_id, anomaly_score, risk_level, detected_at)
			VALUES ($1, $2, $3, $4, $5)`,
			alert.TelemetryID, alert.DeviceID, alert.AnomalyScore,
			alert.RiskLevel, alert.DetectedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert alert row")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// RecentAnomalies returns the latest high-risk alerts across all devices.
func (r *PostgresRepository) RecentAnomalies(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, telemetry_id, device_id, anomaly_score, risk_level, detected_at
		FROM anomalies
		ORDER BY detected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query anomalies")
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// RecentTelemetry returns the last n telemetry rows for a device, newest
// first. This is the read path consumed by the assistant collaborator.
func (r *PostgresRepository) RecentTelemetry(ctx context.Context, deviceID string, n int) ([]HotRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, device_id, patient_id_hash, timestamp, heart_rate, spo2, battery_level
		FROM device_telemetry
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, deviceID, n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query telemetry")
	}
	defer rows.Close()

	var records []HotRecord
	for rows.Next() {
		var rec HotRecord
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.PatientIDHash, &rec.Timestamp,
			&rec.HeartRate, &rec.SpO2, &rec.BatteryLevel); err != nil {
			return nil, errors.Wrap(err, "failed to scan telemetry row")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentAlerts returns the last m alerts for a device, newest first.
func (r *PostgresRepository) RecentAlerts(ctx context.Context, deviceID string, m int) ([]AlertRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, telemetry_id, device_id, anomaly_score, risk_level, detected_at
		FROM anomalies
		WHERE device_id = $1
		ORDER BY detected_at DESC
		LIMIT $2`, deviceID, m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	var alerts []AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.ID, &a.TelemetryID, &a.DeviceID,
			&a.AnomalyScore, &a.RiskLevel, &a.DetectedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan alert row")
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

package vitals

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists readings to the sensor_readings table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// SaveReading inserts r, assigning its ID when unset.
func (r *Repository) SaveReading(ctx context.Context, rd *Reading) error {
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	q := `
		INSERT INTO sensor_readings
			(id, patient_id, heart_rate, spo2, temperature, systolic_bp, diastolic_bp, humidity, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, q,
		rd.ID, rd.PatientID, rd.HeartRate, rd.SpO2, rd.Temperature,
		rd.SystolicBP, rd.DiastolicBP, rd.Humidity, rd.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// History returns up to limit readings for patientID, newest first.
func (r *Repository) History(ctx context.Context, patientID string, limit int) ([]*Reading, error) {
	q := `
		SELECT id, patient_id, heart_rate, spo2, temperature, systolic_bp, diastolic_bp, humidity, recorded_at
		FROM sensor_readings
		WHERE patient_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, q, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	readings, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Reading])
	if err != nil {
		return nil, fmt.Errorf("scan readings: %w", err)
	}
	return readings, nil
}

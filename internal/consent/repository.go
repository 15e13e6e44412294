package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a consent lookup finds no matching record.
var ErrNotFound = errors.New("consent not found")

// ErrDuplicate is returned when an open grant already exists for the pair.
var ErrDuplicate = errors.New("consent request already exists")

const selectGrants = `
	SELECT id, patient_id, doctor_id, status, policy_token, requested_at, approved_at, expires_at
	FROM consents`

// Repository persists consent grants to PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts g, setting its ID. A second PENDING grant for the same pair
// violates consents_pending_pair_uniq and is reported as ErrDuplicate.
func (r *Repository) Create(ctx context.Context, g *Grant) error {
	g.ID = uuid.New()
	q := `
		INSERT INTO consents (id, patient_id, doctor_id, status, policy_token, requested_at, approved_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, q,
		g.ID, g.PatientID, g.DoctorID, g.Status, g.PolicyToken,
		g.RequestedAt, g.ApprovedAt, g.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create consent: %w", err)
	}
	return nil
}

// GetByID retrieves a grant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	grants, err := r.query(ctx, selectGrants+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, ErrNotFound
	}
	return grants[0], nil
}

// FindByPatient returns every grant for patientID, oldest first.
func (r *Repository) FindByPatient(ctx context.Context, patientID string) ([]*Grant, error) {
	return r.query(ctx, selectGrants+` WHERE patient_id = $1 ORDER BY requested_at`, patientID)
}

// FindByPatientAndDoctor returns every grant linking the pair, oldest first.
func (r *Repository) FindByPatientAndDoctor(ctx context.Context, patientID, doctorID string) ([]*Grant, error) {
	return r.query(ctx, selectGrants+` WHERE patient_id = $1 AND doctor_id = $2 ORDER BY requested_at`, patientID, doctorID)
}

// UpdateStatus sets the status and approval window of grant id.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, approvedAt, expiresAt *time.Time) error {
	q := `UPDATE consents SET status = $2, approved_at = $3, expires_at = $4 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, status, approvedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]*Grant, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	grants, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Grant])
	if err != nil {
		return nil, fmt.Errorf("scan consents: %w", err)
	}
	return grants, nil
}

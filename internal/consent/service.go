package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalid is returned for malformed requests and responses.
var ErrInvalid = errors.New("invalid consent request")

// ErrForbidden is returned when someone other than the patient responds.
var ErrForbidden = errors.New("only the patient may respond to a consent request")

// grantRepo is the storage interface consumed by Service.
type grantRepo interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)
	FindByPatient(ctx context.Context, patientID string) ([]*Grant, error)
	FindByPatientAndDoctor(ctx context.Context, patientID, doctorID string) ([]*Grant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, approvedAt, expiresAt *time.Time) error
}

// Service implements the consent workflow.
type Service struct {
	repo   grantRepo
	ttl    time.Duration // 0 = approved grants never expire
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a Service. Approved grants expire after ttl; zero means
// they stay valid until rejected.
func NewService(repo grantRepo, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now, logger: logger}
}

// Request opens a PENDING grant from doctorID to patientID. It fails with
// ErrDuplicate while a pending or active grant already links the pair.
func (s *Service) Request(ctx context.Context, patientID, doctorID string) (*Grant, error) {
	if patientID == "" || doctorID == "" {
		return nil, fmt.Errorf("%w: patientId and doctorId are required", ErrInvalid)
	}
	if patientID == doctorID {
		return nil, fmt.Errorf("%w: patient and doctor must differ", ErrInvalid)
	}

	existing, err := s.repo.FindByPatientAndDoctor(ctx, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("lookup consents: %w", err)
	}
	now := s.now().UTC()
	for _, g := range existing {
		if g.Status == StatusPending || g.Active(now) {
			return nil, ErrDuplicate
		}
	}

	g := &Grant{
		PatientID:   patientID,
		DoctorID:    doctorID,
		Status:      StatusPending,
		PolicyToken: NewPolicyToken(),
		RequestedAt: now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("consent requested",
		zap.String("consent_id", g.ID.String()),
		zap.String("patient", patientID),
		zap.String("doctor", doctorID),
	)
	return g, nil
}

// Respond records the patient's decision on grant id. status must be
// APPROVED or REJECTED; an approved grant may later be rejected to revoke it.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, responder string, status Status) (*Grant, error) {
	if status != StatusApproved && status != StatusRejected {
		return nil, fmt.Errorf("%w: status must be APPROVED or REJECTED", ErrInvalid)
	}

	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.PatientID != responder {
		return nil, ErrForbidden
	}
	if g.Status == StatusRejected {
		return nil, fmt.Errorf("%w: consent already rejected", ErrInvalid)
	}

	var approvedAt, expiresAt *time.Time
	if status == StatusApproved {
		now := s.now().UTC()
		approvedAt = &now
		if s.ttl > 0 {
			exp := now.Add(s.ttl)
			expiresAt = &exp
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, status, approvedAt, expiresAt); err != nil {
		return nil, err
	}
	g.Status, g.ApprovedAt, g.ExpiresAt = status, approvedAt, expiresAt

	s.logger.Info("consent updated",
		zap.String("consent_id", id.String()),
		zap.String("status", string(status)),
	)
	return g, nil
}

// ListForPatient returns every grant for patientID.
func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]*Grant, error) {
	return s.repo.FindByPatient(ctx, patientID)
}

// Check returns the most recent grant linking the pair, or ErrNotFound.
func (s *Service) Check(ctx context.Context, patientID, doctorID string) (*Grant, error) {
	grants, err := s.repo.FindByPatientAndDoctor(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, ErrNotFound
	}
	return grants[len(grants)-1], nil
}

// ActiveGrants returns the approved, unexpired grants for patientID.
func (s *Service) ActiveGrants(ctx context.Context, patientID string) ([]*Grant, error) {
	grants, err := s.repo.FindByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := grants[:0]
	for _, g := range grants {
		if g.Active(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

// HasActiveGrant reports whether doctorID holds an approved, unexpired grant
// for patientID.
func (s *Service) HasActiveGrant(ctx context.Context, patientID, doctorID string) (bool, error) {
	grants, err := s.repo.FindByPatientAndDoctor(ctx, patientID, doctorID)
	if err != nil {
		return false, err
	}
	now := s.now()
	for _, g := range grants {
		if g.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

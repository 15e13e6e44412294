package consent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory repository for tests and development.
type MemoryRepository struct {
	mu     sync.RWMutex
	grants []*Grant
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, g *Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.grants {
		if existing.PolicyToken == g.PolicyToken {
			return ErrDuplicate
		}
		// Mirrors consents_pending_pair_uniq.
		if g.Status == StatusPending && existing.Status == StatusPending &&
			existing.PatientID == g.PatientID && existing.DoctorID == g.DoctorID {
			return ErrDuplicate
		}
	}
	g.ID = uuid.New()
	cp := *g
	r.grants = append(r.grants, &cp)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.grants {
		if g.ID == id {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) FindByPatient(_ context.Context, patientID string) ([]*Grant, error) {
	return r.filter(func(g *Grant) bool { return g.PatientID == patientID }), nil
}

func (r *MemoryRepository) FindByPatientAndDoctor(_ context.Context, patientID, doctorID string) ([]*Grant, error) {
	return r.filter(func(g *Grant) bool { return g.PatientID == patientID && g.DoctorID == doctorID }), nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status, approvedAt, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.ID == id {
			g.Status = status
			g.ApprovedAt = approvedAt
			g.ExpiresAt = expiresAt
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) filter(match func(*Grant) bool) []*Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Grant
	for _, g := range r.grants {
		if match(g) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out
}

package vitals

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps readings in memory for tests and development.
type MemoryRepository struct {
	mu       sync.RWMutex
	readings []*Reading
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) SaveReading(_ context.Context, rd *Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	cp := *rd
	m.readings = append(m.readings, &cp)
	return nil
}

func (m *MemoryRepository) History(_ context.Context, patientID string, limit int) ([]*Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Reading
	for i := len(m.readings) - 1; i >= 0; i-- {
		if m.readings[i].PatientID != patientID {
			continue
		}
		cp := *m.readings[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored readings.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings)
}

package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
	"go.uber.org/zap"
)

// systemSubject is the ledger subject used for alerts without a named user.
const systemSubject = "SYSTEM"

// EventHook observes every event the Recorder has durably saved.
type EventHook func(ctx context.Context, e *SecurityEvent)

// Recorder is the Event Log: it persists security events and, as an alert
// subscriber, turns alerts into events plus ledger transactions.
type Recorder struct {
	store  Store
	ledger trustledger.Ledger // nil = alerts are not chained into the ledger
	logger *zap.Logger

	mu    sync.RWMutex
	hooks []EventHook
}

// NewRecorder creates a Recorder. ledger may be nil.
func NewRecorder(store Store, ledger trustledger.Ledger, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, ledger: ledger, logger: logger}
}

// AddHook registers fn to run after each successful save.
func (r *Recorder) AddHook(fn EventHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Store returns the underlying event store.
func (r *Recorder) Store() Store {
	return r.store
}

// Record persists a new event. The event is durable when Record returns nil.
func (r *Recorder) Record(ctx context.Context, typ EventType, sev Severity, description, source string) (*SecurityEvent, error) {
	e := NewEvent(typ, sev, description, source)
	if err := r.store.SaveEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("save %s event: %w", typ, err)
	}

	r.logger.Info("security event",
		zap.String("type", string(e.Type)),
		zap.String("severity", string(e.Severity)),
		zap.String("source", e.Source),
		zap.String("description", e.Description),
	)

	r.mu.RLock()
	hooks := make([]EventHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, e)
	}
	return e, nil
}

// RecordChained persists a new event and then chains it into the ledger as
// "EVENT:<type>" under subject, or SYSTEM when subject is empty. Without a
// ledger it behaves like Record.
func (r *Recorder) RecordChained(ctx context.Context, typ EventType, sev Severity, description, source, subject string) (*SecurityEvent, error) {
	e, err := r.Record(ctx, typ, sev, description, source)
	if err != nil {
		return nil, err
	}
	if r.ledger == nil {
		return e, nil
	}
	if subject == "" {
		subject = systemSubject
	}
	if _, err := r.ledger.Append(ctx, subject, "EVENT:"+string(typ), description); err != nil {
		return e, fmt.Errorf("ledger append for %s event: %w", typ, err)
	}
	return e, nil
}

// HandleAlert implements AlertHandler. The alert is persisted as an event and
// chained into the ledger as "EVENT:<type>".
func (r *Recorder) HandleAlert(ctx context.Context, a Alert) error {
	source := a.Source
	if source == "" {
		source = "SYSTEM_INTERNAL"
	}
	_, err := r.RecordChained(ctx, a.Type, a.Severity, a.Description, source, a.Subject)
	return err
}

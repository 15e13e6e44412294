// Package lockdown implements the system-wide availability gate.
//
// The controller has two states, NORMAL and LOCKDOWN. It enters LOCKDOWN on an
// administrative call, when one source accumulates too many failed logins, or
// when a critical alert arrives on the audit bus. Only an administrative call
// returns it to NORMAL.
package lockdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"go.uber.org/zap"
)

// DefaultFailedLoginThreshold is the per-source failed login count that
// triggers an automatic lockdown.
const DefaultFailedLoginThreshold = 100

// alertSource tags events for lockdowns triggered by the alert stream.
const alertSource = "SYSTEM_EVENT_LISTENER"

// EventRecorder persists security events. *audit.Recorder satisfies it.
// Transitions go through RecordChained so they also land in the ledger.
type EventRecorder interface {
	Record(ctx context.Context, typ audit.EventType, sev audit.Severity, description, source string) (*audit.SecurityEvent, error)
	RecordChained(ctx context.Context, typ audit.EventType, sev audit.Severity, description, source, subject string) (*audit.SecurityEvent, error)
}

// TransitionFunc observes state transitions. It runs while the controller
// lock is held and must not call Enable or Disable.
type TransitionFunc func(active bool, reason string)

// Config holds controller configuration.
type Config struct {
	FailedLoginThreshold int
}

// Status is a point-in-time view of the controller.
type Status struct {
	Active bool       `json:"isLockdown"`
	Reason string     `json:"reason"`
	Since  *time.Time `json:"since,omitempty"`
}

// Controller guards active, reason and the failed-attempt counters with one
// mutex. Reads go through an atomically published snapshot.
type Controller struct {
	events    EventRecorder
	threshold int
	logger    *zap.Logger

	mu       sync.Mutex
	failures map[string]int
	hooks    []TransitionFunc

	state atomic.Pointer[Status]
}

// New creates a Controller in the NORMAL state.
func New(events EventRecorder, cfg Config, logger *zap.Logger) *Controller {
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = DefaultFailedLoginThreshold
	}
	c := &Controller{
		events:    events,
		threshold: cfg.FailedLoginThreshold,
		failures:  make(map[string]int),
		logger:    logger,
	}
	c.state.Store(&Status{})
	return c
}

// OnTransition registers fn to run on every NORMAL/LOCKDOWN transition.
func (c *Controller) OnTransition(fn TransitionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// IsLockdown reports whether the system is locked down.
func (c *Controller) IsLockdown() bool {
	return c.state.Load().Active
}

// Reason returns the active lockdown reason, or "" when inactive.
func (c *Controller) Reason() string {
	return c.state.Load().Reason
}

// Status returns a copy of the current state.
func (c *Controller) Status() Status {
	return *c.state.Load()
}

// Enable locks the system down. It reports whether a transition happened;
// calling it while already locked down is a no-op that records nothing.
//
// The state changes before the event is persisted: if persistence fails the
// system stays locked down and the error is returned.
func (c *Controller) Enable(ctx context.Context, reason, source string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableLocked(ctx, reason, source)
}

func (c *Controller) enableLocked(ctx context.Context, reason, source string) (bool, error) {
	if c.state.Load().Active {
		return false, nil
	}
	now := time.Now().UTC()
	c.state.Store(&Status{Active: true, Reason: reason, Since: &now})
	c.logger.Error("system entering lockdown", zap.String("reason", reason), zap.String("source", source))
	c.notify(true, reason)

	if _, err := c.events.RecordChained(ctx, audit.EventLockdownEnabled, audit.SeverityCritical,
		"System Lockdown Initiated: "+reason, source, ""); err != nil {
		return true, fmt.Errorf("lockdown enabled but event not persisted: %w", err)
	}
	return true, nil
}

// Disable lifts a lockdown. It reports whether a transition happened. The
// LOCKDOWN_DISABLED event is persisted first; if that fails the system stays
// locked down.
func (c *Controller) Disable(ctx context.Context, source string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Load().Active {
		return false, nil
	}
	if _, err := c.events.RecordChained(ctx, audit.EventLockdownDisabled, audit.SeverityHigh,
		"System Lockdown Lifted by Admin", source, ""); err != nil {
		return false, fmt.Errorf("lockdown not lifted: %w", err)
	}
	c.state.Store(&Status{})
	c.logger.Info("system lockdown lifted", zap.String("source", source))
	c.notify(false, "")
	return true, nil
}

// RecordFailedLogin counts a failed authentication from source. Reaching the
// threshold enables lockdown and clears the counter for source.
func (c *Controller) RecordFailedLogin(ctx context.Context, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[source]++
	attempts := c.failures[source]

	var errs []error
	if _, err := c.events.Record(ctx, audit.EventFailedLogin, audit.SeverityWarn,
		fmt.Sprintf("Failed Login Attempt #%d", attempts), source); err != nil {
		errs = append(errs, err)
	}

	if attempts >= c.threshold {
		delete(c.failures, source)
		reason := fmt.Sprintf("INTRUSION DETECTED: Too many failed logins from %s", source)
		if _, err := c.enableLocked(ctx, reason, source); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetFailedLogin clears the counter for source after a successful login.
func (c *Controller) ResetFailedLogin(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, source)
}

// FailedAttempts returns the current counter for source.
func (c *Controller) FailedAttempts(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[source]
}

// HandleAlert implements audit.AlertHandler. CRITICAL alerts and intrusion
// alerts escalate to lockdown.
func (c *Controller) HandleAlert(ctx context.Context, a audit.Alert) error {
	if a.Severity != audit.SeverityCritical && a.Type != audit.EventIntrusionDetected {
		return nil
	}
	_, err := c.Enable(ctx, "Automatic Lockdown Triggered by: "+string(a.Type), alertSource)
	return err
}

func (c *Controller) notify(active bool, reason string) {
	for _, fn := range c.hooks {
		fn(active, reason)
	}
}

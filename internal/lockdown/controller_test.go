package lockdown_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/lockdown"
	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Stub recorder ─────────────────────────────────────────────────────────

type stubRecorder struct {
	mu      sync.Mutex
	events  []*audit.SecurityEvent
	chained []audit.EventType
	fail    bool
}

func (r *stubRecorder) Record(_ context.Context, typ audit.EventType, sev audit.Severity, desc, source string) (*audit.SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("event store unavailable")
	}
	e := audit.NewEvent(typ, sev, desc, source)
	r.events = append(r.events, e)
	return e, nil
}

func (r *stubRecorder) RecordChained(ctx context.Context, typ audit.EventType, sev audit.Severity, desc, source, _ string) (*audit.SecurityEvent, error) {
	e, err := r.Record(ctx, typ, sev, desc, source)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.chained = append(r.chained, typ)
	r.mu.Unlock()
	return e, nil
}

func (r *stubRecorder) count(typ audit.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newController(rec *stubRecorder) *lockdown.Controller {
	return lockdown.New(rec, lockdown.Config{}, zap.NewNop())
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestNew_startsNormal(t *testing.T) {
	c := newController(&stubRecorder{})
	if c.IsLockdown() {
		t.Error("controller should start in NORMAL")
	}
	if c.Reason() != "" {
		t.Errorf("expected empty reason, got %q", c.Reason())
	}
}

func TestEnable_idempotent(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)

	changed, err := c.Enable(ctx, "maintenance", "10.0.0.9")
	if err != nil || !changed {
		t.Fatalf("first Enable: changed=%v err=%v", changed, err)
	}
	changed, err = c.Enable(ctx, "again", "10.0.0.9")
	if err != nil || changed {
		t.Fatalf("second Enable should be a no-op: changed=%v err=%v", changed, err)
	}

	if n := rec.count(audit.EventLockdownEnabled); n != 1 {
		t.Errorf("expected exactly 1 LOCKDOWN_ENABLED event, got %d", n)
	}
	if c.Reason() != "maintenance" {
		t.Errorf("reason should stay from the first transition, got %q", c.Reason())
	}
	if rec.events[0].Severity != audit.SeverityCritical {
		t.Errorf("enable event severity: got %s", rec.events[0].Severity)
	}
}

func TestDisable_whileInactive_noEvent(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)

	changed, err := c.Disable(ctx, "10.0.0.9")
	if err != nil || changed {
		t.Fatalf("Disable while inactive: changed=%v err=%v", changed, err)
	}
	if len(rec.events) != 0 {
		t.Errorf("expected no events, got %d", len(rec.events))
	}
}

func TestDisable_afterEnable(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)
	c.Enable(ctx, "drill", "admin")

	changed, err := c.Disable(ctx, "admin")
	if err != nil || !changed {
		t.Fatalf("Disable: changed=%v err=%v", changed, err)
	}
	if c.IsLockdown() || c.Reason() != "" {
		t.Error("state should be cleared after Disable")
	}
	if n := rec.count(audit.EventLockdownDisabled); n != 1 {
		t.Errorf("expected 1 LOCKDOWN_DISABLED event, got %d", n)
	}
}

func TestTransitions_chained(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)
	c.Enable(ctx, "drill", "x")
	c.Disable(ctx, "x")
	c.RecordFailedLogin(ctx, "1.2.3.4")

	if len(rec.chained) != 2 || rec.chained[0] != audit.EventLockdownEnabled || rec.chained[1] != audit.EventLockdownDisabled {
		t.Errorf("expected enable and disable chained, got %v", rec.chained)
	}
}

func TestTransitions_growLedger(t *testing.T) {
	ledger := trustledger.New()
	rec := audit.NewRecorder(audit.NewMemoryStore(), ledger, zap.NewNop())
	c := lockdown.New(rec, lockdown.Config{}, zap.NewNop())

	if _, err := c.Enable(ctx, "drill", "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := ledger.Len(ctx); n != 2 {
		t.Fatalf("expected a block for the enable, ledger has %d", n)
	}
	if _, err := c.Disable(ctx, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	chain, _ := ledger.Chain(ctx)
	if len(chain) != 3 {
		t.Fatalf("expected a block for the disable, ledger has %d", len(chain))
	}
	if !strings.Contains(chain[1].Payload, "EVENT:LOCKDOWN_ENABLED") || !strings.Contains(chain[2].Payload, "EVENT:LOCKDOWN_DISABLED") {
		t.Errorf("unexpected payloads %q, %q", chain[1].Payload, chain[2].Payload)
	}
}

func TestEnable_persistFailure_staysLocked(t *testing.T) {
	rec := &stubRecorder{fail: true}
	c := newController(rec)

	changed, err := c.Enable(ctx, "drill", "admin")
	if err == nil {
		t.Fatal("expected persistence error to surface")
	}
	if !changed || !c.IsLockdown() {
		t.Error("lockdown must take effect even when the event cannot be persisted")
	}
}

func TestDisable_persistFailure_staysLocked(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)
	c.Enable(ctx, "drill", "admin")

	rec.fail = true
	changed, err := c.Disable(ctx, "admin")
	if err == nil || changed {
		t.Fatalf("expected failed Disable, got changed=%v err=%v", changed, err)
	}
	if !c.IsLockdown() {
		t.Error("system should remain locked when the unlock event cannot be persisted")
	}
}

func TestRecordFailedLogin_belowThreshold(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)

	for i := 0; i < lockdown.DefaultFailedLoginThreshold-1; i++ {
		if err := c.RecordFailedLogin(ctx, "1.2.3.4"); err != nil {
			t.Fatal(err)
		}
	}
	if c.IsLockdown() {
		t.Error("lockdown must not trigger below the threshold")
	}
	if got := c.FailedAttempts("1.2.3.4"); got != lockdown.DefaultFailedLoginThreshold-1 {
		t.Errorf("FailedAttempts: got %d", got)
	}
	if n := rec.count(audit.EventFailedLogin); n != lockdown.DefaultFailedLoginThreshold-1 {
		t.Errorf("expected one FAILED_LOGIN event per attempt, got %d", n)
	}
}

func TestRecordFailedLogin_thresholdTriggersOnce(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)

	for i := 0; i < lockdown.DefaultFailedLoginThreshold; i++ {
		c.RecordFailedLogin(ctx, "1.2.3.4")
	}
	if !c.IsLockdown() {
		t.Fatal("expected lockdown at the threshold")
	}
	if !strings.Contains(c.Reason(), "1.2.3.4") {
		t.Errorf("reason should name the source, got %q", c.Reason())
	}
	if got := c.FailedAttempts("1.2.3.4"); got != 0 {
		t.Errorf("counter should be cleared after triggering, got %d", got)
	}

	// Further failures while locked down do not produce a second transition.
	c.RecordFailedLogin(ctx, "1.2.3.4")
	if n := rec.count(audit.EventLockdownEnabled); n != 1 {
		t.Errorf("expected exactly 1 LOCKDOWN_ENABLED event, got %d", n)
	}
}

func TestRecordFailedLogin_concurrent(t *testing.T) {
	rec := &stubRecorder{}
	c := newController(rec)

	var wg sync.WaitGroup
	for i := 0; i < lockdown.DefaultFailedLoginThreshold*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordFailedLogin(ctx, "5.6.7.8")
		}()
	}
	wg.Wait()

	if !c.IsLockdown() {
		t.Error("expected lockdown")
	}
	if n := rec.count(audit.EventLockdownEnabled); n != 1 {
		t.Errorf("expected exactly 1 transition, got %d", n)
	}
	if n := rec.count(audit.EventFailedLogin); n != lockdown.DefaultFailedLoginThreshold*2 {
		t.Errorf("lost increments: got %d FAILED_LOGIN events", n)
	}
}

func TestResetFailedLogin(t *testing.T) {
	c := lockdown.New(&stubRecorder{}, lockdown.Config{FailedLoginThreshold: 3}, zap.NewNop())

	c.RecordFailedLogin(ctx, "9.9.9.9")
	c.RecordFailedLogin(ctx, "9.9.9.9")
	c.ResetFailedLogin("9.9.9.9")
	c.RecordFailedLogin(ctx, "9.9.9.9")
	c.RecordFailedLogin(ctx, "9.9.9.9")

	if c.IsLockdown() {
		t.Error("reset should have cleared the counter")
	}
}

func TestHandleAlert(t *testing.T) {
	cases := []struct {
		name  string
		alert audit.Alert
		want  bool
	}{
		{"warn consent violation", audit.Alert{Type: audit.EventConsentViolation, Severity: audit.SeverityWarn}, false},
		{"critical anything", audit.Alert{Type: audit.EventRoleViolation, Severity: audit.SeverityCritical}, true},
		{"intrusion at any severity", audit.Alert{Type: audit.EventIntrusionDetected, Severity: audit.SeverityHigh}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newController(&stubRecorder{})
			if err := c.HandleAlert(ctx, tc.alert); err != nil {
				t.Fatal(err)
			}
			if c.IsLockdown() != tc.want {
				t.Errorf("IsLockdown: got %v, want %v", c.IsLockdown(), tc.want)
			}
		})
	}
}

func TestOnTransition(t *testing.T) {
	c := newController(&stubRecorder{})
	var seen []bool
	c.OnTransition(func(active bool, _ string) { seen = append(seen, active) })

	c.Enable(ctx, "a", "x")
	c.Enable(ctx, "b", "x")
	c.Disable(ctx, "x")
	c.Disable(ctx, "x")

	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("unexpected transitions %v", seen)
	}
}

func TestStatus(t *testing.T) {
	c := newController(&stubRecorder{})
	c.Enable(ctx, "drill", "x")
	s := c.Status()
	if !s.Active || s.Reason != "drill" || s.Since == nil {
		t.Errorf("unexpected status %+v", s)
	}
}

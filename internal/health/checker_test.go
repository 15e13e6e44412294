package health

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubProber struct {
	mu  sync.Mutex
	err error
}

func (p *stubProber) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *stubProber) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type stubRecorder struct {
	mu     sync.Mutex
	events []audit.EventType
}

func (r *stubRecorder) Record(_ context.Context, typ audit.EventType, sev audit.Severity, desc, source string) (*audit.SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, typ)
	return audit.NewEvent(typ, sev, desc, source), nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	abe := &stubProber{err: errors.New("connection refused")}
	ipfs := &stubProber{}
	rec := &stubRecorder{}
	h := New(map[string]Prober{"abe": abe, "ipfs": ipfs}, rec, Config{FailThreshold: 3}, zap.NewNop())

	for i := 0; i < 2; i++ {
		h.CheckAll(context.Background())
	}
	if !h.Ready() {
		t.Error("should stay ready below the threshold")
	}
	if len(rec.events) != 0 {
		t.Errorf("no event expected yet, got %v", rec.events)
	}

	h.CheckAll(context.Background())
	h.CheckAll(context.Background())
	if h.Ready() {
		t.Error("expected not ready after threshold")
	}
	if len(rec.events) != 1 || rec.events[0] != audit.EventDependencyDegraded {
		t.Errorf("expected exactly one DEPENDENCY_DEGRADED, got %v", rec.events)
	}
}

func TestCheckAll_recovers(t *testing.T) {
	abe := &stubProber{err: errors.New("503")}
	h := New(map[string]Prober{"abe": abe}, nil, Config{FailThreshold: 1}, zap.NewNop())

	h.CheckAll(context.Background())
	if h.Ready() {
		t.Fatal("expected degraded")
	}
	abe.set(nil)
	h.CheckAll(context.Background())
	if !h.Ready() {
		t.Error("expected recovery after a successful probe")
	}
	snap := h.Snapshot()
	if len(snap) != 1 || snap[0].Failures != 0 || snap[0].LastError != "" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSnapshot_sorted(t *testing.T) {
	h := New(map[string]Prober{"ipfs": &stubProber{}, "abe": &stubProber{}, "analytics": &stubProber{}}, nil, Config{}, zap.NewNop())
	h.CheckAll(context.Background())
	snap := h.Snapshot()
	if snap[0].Name != "abe" || snap[1].Name != "analytics" || snap[2].Name != "ipfs" {
		t.Errorf("snapshot not sorted: %+v", snap)
	}
}

func TestMetricsRecord(t *testing.T) {
	h := New(map[string]Prober{"abe": &stubProber{}}, nil, Config{}, zap.NewNop())
	var mu sync.Mutex
	calls := 0
	h.SetMetricsRecord(func(dep string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if dep == "abe" && ok {
			calls++
		}
	})
	h.CheckAll(context.Background())
	if calls != 1 {
		t.Errorf("expected 1 metrics call, got %d", calls)
	}
}

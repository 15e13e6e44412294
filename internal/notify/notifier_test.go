package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/notify"
	"go.uber.org/zap"
)

const secret = "siem-secret"

type sink struct {
	mu       sync.Mutex
	payloads []notify.Payload
	badSigs  int
}

func (s *sink) handler(status func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		if !notify.Verify(body, secret, r.Header.Get(notify.SignatureHeader)) {
			s.badSigs++
		}
		var p notify.Payload
		json.Unmarshal(body, &p) //nolint:errcheck
		s.payloads = append(s.payloads, p)
		s.mu.Unlock()
		w.WriteHeader(status())
	}
}

func wait(t *testing.T, n *notify.Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestHandleEvent_deliversSignedHighSeverity(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s.handler(func() int { return http.StatusOK }))
	defer srv.Close()

	n := notify.New(notify.Config{URLs: []string{srv.URL}, Secret: secret}, zap.NewNop())
	n.HandleEvent(context.Background(), audit.NewEvent(audit.EventLockdownEnabled, audit.SeverityCritical, "System Lockdown Initiated: drill", "admin"))
	n.HandleEvent(context.Background(), audit.NewEvent(audit.EventFailedLogin, audit.SeverityWarn, "Failed Login Attempt #1", "1.2.3.4"))
	wait(t, n)

	if len(s.payloads) != 1 {
		t.Fatalf("expected only the CRITICAL event to be delivered, got %d", len(s.payloads))
	}
	if s.payloads[0].Type != string(audit.EventLockdownEnabled) {
		t.Errorf("unexpected payload %+v", s.payloads[0])
	}
	if s.badSigs != 0 {
		t.Error("signature did not verify")
	}
}

func TestHandleEvent_retries(t *testing.T) {
	var calls atomic.Int32
	s := &sink{}
	srv := httptest.NewServer(s.handler(func() int {
		if calls.Add(1) < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}))
	defer srv.Close()

	var mu sync.Mutex
	var outcomes []bool
	n := notify.New(notify.Config{
		URLs:    []string{srv.URL},
		Secret:  secret,
		Backoff: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}, zap.NewNop())
	n.SetMetricsRecorder(func(ok bool) {
		mu.Lock()
		outcomes = append(outcomes, ok)
		mu.Unlock()
	})

	n.HandleEvent(context.Background(), audit.NewEvent(audit.EventIntrusionDetected, audit.SeverityCritical, "x", "y"))
	wait(t, n)

	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if len(outcomes) != 3 || outcomes[0] || outcomes[1] || !outcomes[2] {
		t.Errorf("unexpected outcomes %v", outcomes)
	}
}

func TestHandleEvent_noURLs(t *testing.T) {
	n := notify.New(notify.Config{}, zap.NewNop())
	n.HandleEvent(context.Background(), audit.NewEvent(audit.EventIntrusionDetected, audit.SeverityCritical, "x", "y"))
	wait(t, n)
}

func TestVerify_rejectsTampering(t *testing.T) {
	sig := notify.Sign([]byte(`{"a":1}`), secret)
	if notify.Verify([]byte(`{"a":2}`), secret, sig) {
		t.Error("tampered body verified")
	}
	if notify.Verify([]byte(`{"a":1}`), "other", sig) {
		t.Error("wrong secret verified")
	}
}

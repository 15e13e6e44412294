// Package notify delivers high-severity security events to external SIEM
// webhooks. Each request body is signed with HMAC-SHA256.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"go.uber.org/zap"
)

// SignatureHeader carries the body signature, "sha256=<hex>".
const SignatureHeader = "X-Vitals-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Config holds notifier configuration.
type Config struct {
	URLs        []string
	Secret      string
	MinSeverity audit.Severity  // default HIGH
	Timeout     time.Duration   // per attempt
	Backoff     []time.Duration // delays before attempts 2..n
}

// Payload is the JSON body posted to each endpoint.
type Payload struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier fans security events out to every configured endpoint.
//
// HandleEvent never blocks: it may run inside the lockdown controller's
// critical section, so delivery happens on its own goroutine.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// New creates a Notifier.
func New(cfg Config, logger *zap.Logger) *Notifier {
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = audit.SeverityHigh
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = []time.Duration{1 * time.Second, 5 * time.Second}
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// HandleEvent implements audit.EventHook.
func (n *Notifier) HandleEvent(_ context.Context, e *audit.SecurityEvent) {
	if len(n.cfg.URLs) == 0 || !e.Severity.AtLeast(n.cfg.MinSeverity) {
		return
	}
	body, err := json.Marshal(Payload{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Severity:    string(e.Severity),
		Description: e.Description,
		Source:      e.Source,
		Timestamp:   e.Timestamp,
	})
	if err != nil {
		n.logger.Error("notify: marshal event", zap.Error(err))
		return
	}
	sig := Sign(body, n.cfg.Secret)

	for _, url := range n.cfg.URLs {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.deliver(url, body, sig)
		}()
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver posts body to url, retrying after each configured backoff.
func (n *Notifier) deliver(url string, body []byte, sig string) {
	attempts := len(n.cfg.Backoff) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(n.cfg.Backoff[attempt-2])
		}

		err := n.post(url, body, sig)
		if n.onMetrics != nil {
			n.onMetrics(err == nil)
		}
		if err == nil {
			return
		}
		n.logger.Warn("notify: delivery failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (n *Notifier) post(url string, body []byte, sig string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the HMAC-SHA256 signature of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature of body.
func Verify(body []byte, secret, sig string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(sig))
}

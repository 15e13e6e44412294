// Package health probes the pipeline's mandatory collaborators and reports
// readiness.
package health

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"go.uber.org/zap"
)

// eventSource tags DEPENDENCY_DEGRADED events.
const eventSource = "HEALTH_CHECKER"

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Prober is implemented by each collaborator client (abe, analytics,
// contentstore).
type Prober interface {
	Probe(ctx context.Context) error
}

// EventRecorder persists security events.
type EventRecorder interface {
	Record(ctx context.Context, typ audit.EventType, sev audit.Severity, description, source string) (*audit.SecurityEvent, error)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(dependency string, success bool)

// DependencyStatus is the last observed state of one collaborator.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"consecutiveFailures"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Checker runs periodic dependency probes.
type Checker struct {
	deps      map[string]Prober
	events    EventRecorder
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu     sync.Mutex
	status map[string]*DependencyStatus
}

// New creates a Checker for the named dependencies. events may be nil.
func New(deps map[string]Prober, events EventRecorder, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	status := make(map[string]*DependencyStatus, len(deps))
	for name := range deps {
		// Unknown until first probe; report healthy so startup is not blocked.
		status[name] = &DependencyStatus{Name: name, Healthy: true}
	}
	return &Checker{
		deps:   deps,
		events: events,
		cfg:    cfg,
		status: status,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until quit is signalled.
func (h *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(context.Background())
	for {
		select {
		case <-ticker.C:
			h.CheckAll(context.Background())
		case <-quit:
			return
		}
	}
}

// CheckAll probes every dependency concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for name, p := range h.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.check(ctx, name, p)
		}()
	}
	wg.Wait()
}

func (h *Checker) check(ctx context.Context, name string, p Prober) {
	pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := p.Probe(pctx)
	cancel()

	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	st := h.status[name]
	prev := st.Failures
	st.CheckedAt = time.Now().UTC()
	if err == nil {
		st.Failures = 0
		st.Healthy = true
		st.LastError = ""
	} else {
		st.Failures++
		st.LastError = err.Error()
		if st.Failures >= h.cfg.FailThreshold {
			st.Healthy = false
		}
	}
	count := st.Failures
	h.mu.Unlock()

	switch {
	case err == nil && prev >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case err != nil && count == h.cfg.FailThreshold:
		// Transition healthy -> degraded, exactly at threshold.
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		if h.events != nil {
			desc := fmt.Sprintf("Dependency %s degraded after %d failed probes: %v", name, count, err)
			if _, recErr := h.events.Record(ctx, audit.EventDependencyDegraded, audit.SeverityHigh, desc, eventSource); recErr != nil {
				h.logger.Warn("health: record event", zap.Error(recErr))
			}
		}
	}
}

// Ready reports whether every dependency is healthy.
func (h *Checker) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.status {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns the status of every dependency, sorted by name.
func (h *Checker) Snapshot() []DependencyStatus {
	h.mu.Lock()
	out := make([]DependencyStatus, 0, len(h.status))
	for _, st := range h.status {
		out = append(out, *st)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// AlertHandler consumes alerts published on a Bus.
type AlertHandler interface {
	HandleAlert(ctx context.Context, a Alert) error
}

// AlertHandlerFunc adapts a function to AlertHandler.
type AlertHandlerFunc func(ctx context.Context, a Alert) error

// HandleAlert implements AlertHandler.
func (f AlertHandlerFunc) HandleAlert(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// Bus is the process-wide alert stream. Publish delivers to every subscriber
// synchronously, in subscription order. A subscriber error is logged and does
// not stop delivery to the remaining subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []AlertHandler
	logger *zap.Logger
}

// NewBus creates a Bus with no subscribers.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers h for every subsequent Publish.
func (b *Bus) Subscribe(h AlertHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, h)
}

// Publish implements the alert emitter used by the policy engine.
func (b *Bus) Publish(ctx context.Context, a Alert) {
	b.mu.RLock()
	subs := make([]AlertHandler, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, h := range subs {
		if err := h.HandleAlert(ctx, a); err != nil {
			b.logger.Error("audit: alert subscriber failed",
				zap.String("type", string(a.Type)),
				zap.Error(err),
			)
		}
	}
}

// Package broadcast fans readings and alerts out to real-time subscribers:
// dashboards over WebSocket and downstream consumers over Kafka. Delivery is
// best-effort everywhere.
package broadcast

import (
	"context"
	"errors"
)

const (
	// WardTopic carries every reading for the ward overview.
	WardTopic = "/topic/ward"
	// AlertsTopic carries elevated analytics results.
	AlertsTopic = "/topic/alerts"
	// SecurityTopic carries lockdown transitions.
	SecurityTopic = "/topic/security"
)

// VitalsTopic is the per-patient reading channel.
func VitalsTopic(patientID string) string {
	return "/topic/vitals/" + patientID
}

// Publisher sends payload to every subscriber of topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Multi publishes to several publishers. Every publisher is attempted; the
// errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"
)

// IndexName is the OpenSearch index security events are mirrored into.
const IndexName = "vitalsguard-security-events"

// EventSink accepts a copy of every saved event.
type EventSink interface {
	SaveEvent(ctx context.Context, e *SecurityEvent) error
}

// OpenSearchSink indexes security events into OpenSearch so SIEM dashboards
// can search them. It is a mirror, never the system of record.
type OpenSearchSink struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchSink creates a sink for the cluster at address.
func NewOpenSearchSink(address string) (*OpenSearchSink, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     []string{address},
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 500 * time.Millisecond
		},
		MaxRetries: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &OpenSearchSink{client: client, index: IndexName}, nil
}

// SaveEvent implements EventSink using the event ID as document ID, so a
// retried mirror write does not duplicate the document.
func (s *OpenSearchSink) SaveEvent(ctx context.Context, e *SecurityEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: e.ID.String(),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("index event: %s: %s", res.Status(), msg)
	}
	return nil
}

// MirroredStore writes to a primary Store and then copies the event to a
// sink. Primary failures are returned; sink failures are only logged.
type MirroredStore struct {
	Store
	sink   EventSink
	logger *zap.Logger
}

// NewMirroredStore wraps primary with a best-effort mirror.
func NewMirroredStore(primary Store, sink EventSink, logger *zap.Logger) *MirroredStore {
	return &MirroredStore{Store: primary, sink: sink, logger: logger}
}

// SaveEvent implements Store.
func (m *MirroredStore) SaveEvent(ctx context.Context, e *SecurityEvent) error {
	if err := m.Store.SaveEvent(ctx, e); err != nil {
		return err
	}
	if err := m.sink.SaveEvent(ctx, e); err != nil {
		m.logger.Warn("audit: mirror event",
			zap.String("event_id", e.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

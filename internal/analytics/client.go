// Package analytics calls the external predictive-analytics service.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is the analytics verdict for one reading. Fields holds the full
// response so it can be forwarded to dashboards unchanged.
type Result struct {
	RiskLevel string         `json:"risk_level"`
	Fields    map[string]any `json:"-"`
}

// Elevated reports whether the risk level warrants an alert broadcast.
func (r *Result) Elevated() bool {
	switch strings.ToUpper(r.RiskLevel) {
	case "HIGH", "CRITICAL":
		return true
	}
	return false
}

// Client posts readings to the analytics service.
type Client struct {
	url  string
	http *http.Client
}

// New creates a Client for the analyze endpoint at url.
func New(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Analyze submits reading and returns the service's verdict.
func (c *Client) Analyze(ctx context.Context, reading any) (*Result, error) {
	body, err := json.Marshal(reading)
	if err != nil {
		return nil, fmt.Errorf("marshal reading: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analytics returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}

	res := &Result{}
	if err := json.Unmarshal(raw, &res.Fields); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	if lvl, ok := res.Fields["risk_level"].(string); ok {
		res.RiskLevel = lvl
	}
	return res, nil
}

// Probe checks that the analytics service answers.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(c.url), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// healthURL maps ".../analyze" to ".../health".
func healthURL(analyzeURL string) string {
	base := strings.TrimSuffix(strings.TrimRight(analyzeURL, "/"), "/analyze")
	return base + "/health"
}

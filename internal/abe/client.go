// Package abe is the client for the external attribute-based encryption
// authority. The authority performs the actual encryption; this package only
// delegates to it and never produces ciphertext itself.
package abe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// ErrUnavailable is returned when the authority cannot produce a ciphertext.
// Callers must fail closed on it.
var ErrUnavailable = errors.New("encryption authority unavailable")

// OAuthConfig enables client-credentials authentication to the authority.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	OAuth   *OAuthConfig // nil = unauthenticated
}

type encryptRequest struct {
	Data   string `json:"data"`
	Policy string `json:"policy"`
}

type encryptResponse struct {
	Ciphertext string `json:"ciphertext"`
	Status     string `json:"status"`
}

// Client calls POST {BaseURL}/abe/encrypt.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.OAuth != nil && cfg.OAuth.ClientID != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		hc = cc.Client(context.Background())
		hc.Timeout = cfg.Timeout
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: hc}
}

// Encrypt asks the authority to encrypt plaintext under policy and returns
// the ciphertext. Any transport failure, non-2xx status or empty ciphertext
// is reported as ErrUnavailable.
func (c *Client) Encrypt(ctx context.Context, plaintext, policy string) (string, error) {
	body, err := json.Marshal(encryptRequest{Data: plaintext, Policy: policy})
	if err != nil {
		return "", fmt.Errorf("marshal encrypt request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/abe/encrypt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build encrypt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	var out encryptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if out.Ciphertext == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrUnavailable)
	}
	return out.Ciphertext, nil
}

// Probe checks that the authority answers on {BaseURL}/health.
func (c *Client) Probe(ctx context.Context) error {
	return probe(ctx, c.http, c.baseURL+"/health")
}

func probe(ctx context.Context, hc *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

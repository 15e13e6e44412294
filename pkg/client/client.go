package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/internal/lockdown"
	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
	"github.com/jmerrifield20/vitalsguard/internal/vitals"
)

// ErrSuspended is returned when the server rejects a request because the
// system is locked down.
var ErrSuspended = errors.New("service suspended: system lockdown")

// lockdownCode is the error code the server sends with a 503 during lockdown.
const lockdownCode = "SYSTEM_LOCKDOWN"

// maxBody caps decoded response bodies. Exports stream and are not capped.
const maxBody = 8 << 20

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// UploadResult is the server's answer to a secured upload.
type UploadResult struct {
	Status        string `json:"status"`
	ReadingID     string `json:"readingId"`
	ContentHandle string `json:"contentHandle"`
	TxHash        string `json:"txHash"`
}

// LedgerSummary is the ledger size and tip hash.
type LedgerSummary struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// Transition is the answer to a lockdown or unlock call.
type Transition struct {
	Changed bool            `json:"changed"`
	Status  lockdown.Status `json:"status"`
}

// Override is a granted emergency access.
type Override struct {
	Status         string `json:"status"`
	EmergencyToken string `json:"emergencyToken"`
	ExpiresIn      int    `json:"expiresIn"`
}

// Client talks to one vitalsguard server.
type Client struct {
	base       string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a previously issued session token.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the current session token, or "".
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ── Auth ────────────────────────────────────────────────────────────────────

// Login authenticates and stores the session token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return err
	}
	if out.Token == "" {
		return errors.New("login response carried no token")
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return nil
}

// ── Sensor ──────────────────────────────────────────────────────────────────

// Upload submits one reading through the secured ingestion pipeline.
func (c *Client) Upload(ctx context.Context, r vitals.Reading) (*UploadResult, error) {
	var out UploadResult
	if err := c.call(ctx, http.MethodPost, "/sensor/upload", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns up to limit readings for patientID, newest first.
func (c *Client) History(ctx context.Context, patientID string, limit int) ([]vitals.Reading, error) {
	path := "/sensor/history/" + url.PathEscape(patientID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []vitals.Reading
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Security ────────────────────────────────────────────────────────────────

// Status returns the lockdown state. It needs no session.
func (c *Client) Status(ctx context.Context) (*lockdown.Status, error) {
	var out lockdown.Status
	if err := c.call(ctx, http.MethodGet, "/security/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lockdown enables a system lockdown. Requires an admin session.
func (c *Client) Lockdown(ctx context.Context, reason string) (*Transition, error) {
	var out Transition
	if err := c.call(ctx, http.MethodPost, "/security/lockdown", map[string]string{"reason": reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unlock lifts a lockdown. Requires an admin session.
func (c *Client) Unlock(ctx context.Context) (*Transition, error) {
	var out Transition
	if err := c.call(ctx, http.MethodPost, "/security/unlock", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns the most recent security events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]audit.SecurityEvent, error) {
	path := "/security/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []audit.SecurityEvent
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportEvents streams the security event CSV export into w.
func (c *Client) ExportEvents(ctx context.Context, w io.Writer) error {
	return c.stream(ctx, "/export/events.csv", w)
}

// Override requests emergency access to patientID. The reason is mandatory.
func (c *Client) Override(ctx context.Context, patientID, reason string) (*Override, error) {
	var out Override
	body := map[string]string{"patientId": patientID, "reason": reason}
	if err := c.call(ctx, http.MethodPost, "/emergency/override", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Ledger ──────────────────────────────────────────────────────────────────

// Ledger returns the ledger size and root hash.
func (c *Client) Ledger(ctx context.Context) (*LedgerSummary, error) {
	var out LedgerSummary
	if err := c.call(ctx, http.MethodGet, "/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLedger asks the server to verify its chain. A broken chain is
// reported as an error carrying the server's reason.
func (c *Client) VerifyLedger(ctx context.Context) error {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, http.MethodGet, "/ledger/verify", nil, &out); err != nil {
		return err
	}
	if !out.Valid {
		return fmt.Errorf("ledger invalid: %s", out.Error)
	}
	return nil
}

// Chain downloads every block, genesis first.
func (c *Client) Chain(ctx context.Context) ([]trustledger.Block, error) {
	var buf bytes.Buffer
	if err := c.stream(ctx, "/ledger/chain", &buf); err != nil {
		return nil, err
	}
	return trustledger.ReadJSON(&buf)
}

// ── Consent ─────────────────────────────────────────────────────────────────

// RequestConsent asks patientID for access on behalf of the logged-in clinician.
func (c *Client) RequestConsent(ctx context.Context, patientID string) (*consent.Grant, error) {
	var out consent.Grant
	if err := c.call(ctx, http.MethodPost, "/consent/request", map[string]string{"patientId": patientID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RespondConsent approves or rejects a pending grant.
func (c *Client) RespondConsent(ctx context.Context, consentID, status string) (*consent.Grant, error) {
	var out consent.Grant
	body := map[string]string{"consentId": consentID, "status": status}
	if err := c.call(ctx, http.MethodPost, "/consent/respond", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Transport ───────────────────────────────────────────────────────────────

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) stream(ctx context.Context, path string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return checkStatus(resp.StatusCode, body)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	return nil
}

func checkStatus(code int, body []byte) error {
	if code < 300 {
		return nil
	}
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(body, &e)
	if code == http.StatusServiceUnavailable && e.Code == lockdownCode {
		return ErrSuspended
	}
	msg := e.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &StatusError{Code: code, Message: msg}
}

package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/vitalsguard/internal/api/handler"
	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/internal/identity"
	"github.com/jmerrifield20/vitalsguard/internal/lockdown"
	"github.com/jmerrifield20/vitalsguard/internal/policy"
	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
	"github.com/jmerrifield20/vitalsguard/internal/users"
	"github.com/jmerrifield20/vitalsguard/internal/vitals"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ctx = context.Background()

// ── Test harness ──────────────────────────────────────────────────────────

// env wires the real in-memory services behind a gin router.
type env struct {
	router   *gin.Engine
	tokens   *identity.SessionIssuer
	events   *audit.MemoryStore
	ledger   *trustledger.MemoryLedger
	lockdown *lockdown.Controller
	users    *users.UserService
	consents *consent.Service
	readings *vitals.MemoryRepository
	ingest   *stubIngester
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	tokens, err := identity.NewSessionIssuer([]byte("0123456789abcdef0123456789abcdef"), "vitalsguard", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	e := &env{
		tokens:   tokens,
		events:   audit.NewMemoryStore(),
		ledger:   trustledger.New(),
		readings: vitals.NewMemoryRepository(),
		ingest:   &stubIngester{},
	}
	recorder := audit.NewRecorder(e.events, e.ledger, log)
	bus := audit.NewBus(log)
	e.lockdown = lockdown.New(recorder, lockdown.Config{FailedLoginThreshold: 3}, log)
	bus.Subscribe(recorder)
	bus.Subscribe(e.lockdown)

	e.users = users.NewUserService(users.NewMemoryRepository(), e.lockdown, recorder, log)
	e.users.SetPasswordCost(bcrypt.MinCost)
	e.consents = consent.NewService(consent.NewMemoryRepository(), time.Hour, log)
	engine := policy.NewEngine(e.users, e.consents, bus, log)

	for _, u := range []struct{ name, role string }{
		{"admin", "ADMIN"}, {"drwho", "DOCTOR"}, {"nurse1", "NURSE"}, {"p1", "PATIENT"}, {"p2", "PATIENT"},
	} {
		if _, err := e.users.Register(ctx, u.name, "password123", u.role, "Cardiology", nil); err != nil {
			t.Fatal(err)
		}
	}

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(e.users, tokens, log).Register(v1)
	handler.NewSensorHandler(e.ingest, e.readings, engine, tokens, log).Register(v1)
	handler.NewSecurityHandler(e.lockdown, e.events, tokens, log).Register(v1)
	handler.NewLedgerHandler(e.ledger, log).Register(v1)
	handler.NewConsentHandler(e.consents, tokens, log).Register(v1)
	handler.NewEmergencyHandler(recorder, e.users, tokens, 0, log).Register(v1)
	handler.RegisterHealth(r, nil, e.lockdown)
	e.router = r
	return e
}

func (e *env) token(t *testing.T, username, role string) string {
	t.Helper()
	tok, err := e.tokens.Issue(username, role)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *env) do(method, path, token, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// ── Health ────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.do(http.MethodGet, "/healthz", "", ""), http.StatusOK)
	expectStatus(t, e.do(http.MethodGet, "/readyz", "", ""), http.StatusOK)
}

package policy_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/internal/policy"
	"github.com/jmerrifield20/vitalsguard/internal/users"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Stubs ─────────────────────────────────────────────────────────────────

type stubUsers struct {
	byName map[string]*users.User
	err    error
}

func (s *stubUsers) FindUser(_ context.Context, username string) (*users.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.byName[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

type failingConsents struct{}

func (failingConsents) HasActiveGrant(context.Context, string, string) (bool, error) {
	return false, errors.New("connection refused")
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []audit.Alert
}

func (r *recordingAlerts) Publish(_ context.Context, a audit.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerts) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.EventType
	for _, a := range r.alerts {
		out = append(out, a.Type)
	}
	return out
}

// ── Fixture ───────────────────────────────────────────────────────────────

type fixture struct {
	engine   *policy.Engine
	alerts   *recordingAlerts
	consents *consent.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	u := &stubUsers{byName: map[string]*users.User{
		"root": {ID: uuid.New(), Username: "root", Role: users.RoleAdmin},
		"d1":   {ID: uuid.New(), Username: "d1", Role: users.RoleDoctor, Department: "Cardiology"},
		"n1":   {ID: uuid.New(), Username: "n1", Role: users.RoleNurse},
		"p1":   {ID: uuid.New(), Username: "p1", Role: users.RolePatient},
		"p2":   {ID: uuid.New(), Username: "p2", Role: users.RolePatient},
	}}
	svc := consent.NewService(consent.NewMemoryRepository(), time.Hour, zap.NewNop())
	alerts := &recordingAlerts{}
	return &fixture{
		engine:   policy.NewEngine(u, svc, alerts, zap.NewNop()),
		alerts:   alerts,
		consents: svc,
	}
}

func (f *fixture) grant(t *testing.T, patient, doctor string, status consent.Status) {
	t.Helper()
	g, err := f.consents.Request(ctx, patient, doctor)
	if err != nil {
		t.Fatal(err)
	}
	if status == consent.StatusPending {
		return
	}
	if _, err := f.consents.Respond(ctx, g.ID, patient, status); err != nil {
		t.Fatal(err)
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestEvaluate_unknownUser(t *testing.T) {
	f := newFixture(t)
	d := f.engine.Evaluate(ctx, "ghost", "p1")
	if d.Allowed {
		t.Fatal("unknown user must be denied")
	}
	if got := f.alerts.types(); len(got) != 1 || got[0] != audit.EventUnknownUserAccess {
		t.Errorf("unexpected alerts %v", got)
	}
}

func TestEvaluate_adminAlwaysAllowed(t *testing.T) {
	f := newFixture(t)
	if d := f.engine.Evaluate(ctx, "root", "p1"); !d.Allowed {
		t.Errorf("admin should be allowed: %+v", d)
	}
	if len(f.alerts.types()) != 0 {
		t.Error("admin access must not raise alerts")
	}
}

func TestEvaluate_selfAccessRegardlessOfRole(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"p1", "d1", "n1"} {
		if d := f.engine.Evaluate(ctx, name, name); !d.Allowed || d.Rule != "self" {
			t.Errorf("%s self access: %+v", name, d)
		}
	}
}

func TestEvaluate_selfAccessByID(t *testing.T) {
	f := newFixture(t)
	u := &stubUsers{byName: map[string]*users.User{
		"p9": {ID: uuid.MustParse("11111111-2222-3333-4444-555555555555"), Username: "p9", Role: users.RolePatient},
	}}
	e := policy.NewEngine(u, f.consents, f.alerts, zap.NewNop())
	if d := e.Evaluate(ctx, "p9", "11111111-2222-3333-4444-555555555555"); !d.Allowed {
		t.Errorf("self access by ID should be allowed: %+v", d)
	}
}

func TestEvaluate_nonClinicianDenied(t *testing.T) {
	f := newFixture(t)
	d := f.engine.Evaluate(ctx, "p2", "p1")
	if d.Allowed {
		t.Fatal("patient reading another patient must be denied")
	}
	got := f.alerts.types()
	if len(got) != 1 || got[0] != audit.EventRoleViolation {
		t.Fatalf("unexpected alerts %v", got)
	}
	a := f.alerts.alerts[0]
	if !strings.Contains(a.Description, "p2") || !strings.Contains(a.Description, "p1") {
		t.Errorf("alert should name requester and target: %q", a.Description)
	}
	if a.Severity != audit.SeverityWarn {
		t.Errorf("severity: got %s", a.Severity)
	}
}

func TestEvaluate_consent(t *testing.T) {
	cases := []struct {
		name    string
		status  consent.Status
		allowed bool
	}{
		{"approved", consent.StatusApproved, true},
		{"pending", consent.StatusPending, false},
		{"rejected", consent.StatusRejected, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.grant(t, "p1", "d1", tc.status)

			d := f.engine.Evaluate(ctx, "d1", "p1")
			if d.Allowed != tc.allowed {
				t.Fatalf("allowed: got %v, want %v", d.Allowed, tc.allowed)
			}
			alerts := f.alerts.types()
			if tc.allowed && len(alerts) != 0 {
				t.Errorf("allowed access should not alert: %v", alerts)
			}
			if !tc.allowed && (len(alerts) != 1 || alerts[0] != audit.EventConsentViolation) {
				t.Errorf("expected one CONSENT_VIOLATION alert, got %v", alerts)
			}
		})
	}
}

func TestEvaluate_consentForOtherDoctorDoesNotApply(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "p1", "d1", consent.StatusApproved)
	if d := f.engine.Evaluate(ctx, "n1", "p1"); d.Allowed {
		t.Error("consent granted to d1 must not allow n1")
	}
}

func TestEvaluate_lookupFailuresDeny(t *testing.T) {
	alerts := &recordingAlerts{}
	broken := &stubUsers{err: errors.New("db down")}
	e := policy.NewEngine(broken, failingConsents{}, alerts, zap.NewNop())
	if d := e.Evaluate(ctx, "root", "p1"); d.Allowed {
		t.Error("user lookup failure must deny")
	}

	okUsers := &stubUsers{byName: map[string]*users.User{"d1": {Username: "d1", Role: users.RoleDoctor}}}
	e = policy.NewEngine(okUsers, failingConsents{}, alerts, zap.NewNop())
	if d := e.Evaluate(ctx, "d1", "p1"); d.Allowed {
		t.Error("consent lookup failure must deny")
	}

	for _, typ := range alerts.types() {
		if typ != audit.EventPolicyLookupFailed {
			t.Errorf("unexpected alert type %s", typ)
		}
	}
}

func TestEvaluate_recordsDecisions(t *testing.T) {
	f := newFixture(t)
	var rules []string
	f.engine.SetDecisionRecorder(func(_ bool, rule string) { rules = append(rules, rule) })
	f.engine.Evaluate(ctx, "root", "p1")
	f.engine.Evaluate(ctx, "p2", "p1")
	if len(rules) != 2 || rules[0] != "admin" || rules[1] != "role" {
		t.Errorf("unexpected rules %v", rules)
	}
}

// Package policy decides whether a requester may read a patient's data.
//
// Evaluation runs a fixed, ordered rule list; the first rule that reaches a
// verdict wins. Denials worth attention are published as alerts; the engine
// never changes lockdown or ledger state itself.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"github.com/jmerrifield20/vitalsguard/internal/users"
	"go.uber.org/zap"
)

// Decision is the ephemeral outcome of one evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule"`
	Reason  string `json:"reason"`
}

// UserFinder looks up requesters. It returns users.ErrNotFound for unknown users.
type UserFinder interface {
	FindUser(ctx context.Context, username string) (*users.User, error)
}

// ConsentChecker answers whether a doctor holds an approved, unexpired grant.
type ConsentChecker interface {
	HasActiveGrant(ctx context.Context, patientID, doctorID string) (bool, error)
}

// AlertPublisher publishes alerts to the process-wide stream.
type AlertPublisher interface {
	Publish(ctx context.Context, a audit.Alert)
}

// DecisionRecordFunc is an optional callback for recording decisions.
type DecisionRecordFunc func(allowed bool, rule string)

// request is the state shared by the rules during one evaluation.
type request struct {
	username string
	target   string
	user     *users.User
}

// ruleFunc returns a Decision and true when it reaches a verdict.
type ruleFunc func(ctx context.Context, req *request) (Decision, bool)

// Engine evaluates access requests.
type Engine struct {
	users    UserFinder
	consents ConsentChecker
	alerts   AlertPublisher
	rules    []ruleFunc
	onDecide DecisionRecordFunc
	logger   *zap.Logger
}

// NewEngine returns an Engine loaded with the default rule set.
func NewEngine(finder UserFinder, consents ConsentChecker, alerts AlertPublisher, logger *zap.Logger) *Engine {
	e := &Engine{users: finder, consents: consents, alerts: alerts, logger: logger}
	e.rules = []ruleFunc{
		e.ruleKnownUser,
		ruleAdmin,
		ruleSelfAccess,
		e.ruleClinicalRole,
		e.ruleConsent,
	}
	return e
}

// SetDecisionRecorder configures the metrics callback.
func (e *Engine) SetDecisionRecorder(fn DecisionRecordFunc) {
	e.onDecide = fn
}

// Evaluate decides whether username may read targetPatientID's data.
func (e *Engine) Evaluate(ctx context.Context, username, targetPatientID string) Decision {
	req := &request{username: username, target: targetPatientID}
	d := e.evaluate(ctx, req)
	if e.onDecide != nil {
		e.onDecide(d.Allowed, d.Rule)
	}
	e.logger.Debug("access decision",
		zap.String("requester", username),
		zap.String("target", targetPatientID),
		zap.Bool("allowed", d.Allowed),
		zap.String("rule", d.Rule),
	)
	return d
}

func (e *Engine) evaluate(ctx context.Context, req *request) Decision {
	for _, rule := range e.rules {
		if d, ok := rule(ctx, req); ok {
			return d
		}
	}
	return e.deny(ctx, "consent", audit.EventConsentViolation,
		fmt.Sprintf("Doctor %s tried to access %s without CONSENT", req.user.Username, req.target),
		req.user.Username)
}

// ── Rules ─────────────────────────────────────────────────────────────────

func (e *Engine) ruleKnownUser(ctx context.Context, req *request) (Decision, bool) {
	u, err := e.users.FindUser(ctx, req.username)
	switch {
	case errors.Is(err, users.ErrNotFound) || (err == nil && u == nil):
		return e.deny(ctx, "unknown_user", audit.EventUnknownUserAccess,
			fmt.Sprintf("Unknown user %q tried to access %s", req.username, req.target), ""), true
	case err != nil:
		return e.lookupFailed(ctx, req, "user lookup", err), true
	}
	req.user = u
	return Decision{}, false
}

func ruleAdmin(_ context.Context, req *request) (Decision, bool) {
	if req.user.Role == users.RoleAdmin {
		return Decision{Allowed: true, Rule: "admin", Reason: "administrator"}, true
	}
	return Decision{}, false
}

func ruleSelfAccess(_ context.Context, req *request) (Decision, bool) {
	if req.user.Username == req.target || req.user.ID.String() == req.target {
		return Decision{Allowed: true, Rule: "self", Reason: "self access"}, true
	}
	return Decision{}, false
}

func (e *Engine) ruleClinicalRole(ctx context.Context, req *request) (Decision, bool) {
	if req.user.Role.IsClinician() {
		return Decision{}, false
	}
	return e.deny(ctx, "role", audit.EventRoleViolation,
		fmt.Sprintf("%s tried to access %s without medical role", req.user.Username, req.target),
		req.user.Username), true
}

func (e *Engine) ruleConsent(ctx context.Context, req *request) (Decision, bool) {
	ok, err := e.consents.HasActiveGrant(ctx, req.target, req.user.Username)
	if err != nil {
		return e.lookupFailed(ctx, req, "consent lookup", err), true
	}
	if ok {
		return Decision{Allowed: true, Rule: "consent", Reason: "approved consent"}, true
	}
	return Decision{}, false
}

// ── Helpers ───────────────────────────────────────────────────────────────

func (e *Engine) deny(ctx context.Context, rule string, typ audit.EventType, desc, subject string) Decision {
	e.alerts.Publish(ctx, audit.Alert{
		Type:        typ,
		Severity:    audit.SeverityWarn,
		Description: desc,
		Subject:     subject,
	})
	return Decision{Allowed: false, Rule: rule, Reason: desc}
}

func (e *Engine) lookupFailed(ctx context.Context, req *request, what string, err error) Decision {
	e.logger.Error("policy lookup failed, denying",
		zap.String("lookup", what),
		zap.String("requester", req.username),
		zap.Error(err),
	)
	return e.deny(ctx, "lookup_failed", audit.EventPolicyLookupFailed,
		fmt.Sprintf("%s failed for %s accessing %s", what, req.username, req.target), req.username)
}

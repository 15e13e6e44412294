// Package audit records security and system events and carries the
// process-wide alert stream.
//
// Events are flat records persisted through a Store. Alerts are published on
// a Bus by components that detect a notable condition (the access policy
// engine, the login path); subscribers such as the Recorder and the lockdown
// controller decide what to do with them.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags a SecurityEvent.
type EventType string

const (
	EventFailedLogin         EventType = "FAILED_LOGIN"
	EventLockdownEnabled     EventType = "LOCKDOWN_ENABLED"
	EventLockdownDisabled    EventType = "LOCKDOWN_DISABLED"
	EventIntrusionDetected   EventType = "INTRUSION_DETECTED"
	EventRoleViolation       EventType = "ROLE_VIOLATION"
	EventConsentViolation    EventType = "CONSENT_VIOLATION"
	EventUnknownUserAccess   EventType = "UNKNOWN_USER_ACCESS"
	EventAttributeRevocation EventType = "ATTRIBUTE_REVOCATION"
	EventEmergencyOverride   EventType = "EMERGENCY_OVERRIDE"
	EventPolicyLookupFailed  EventType = "POLICY_LOOKUP_FAILED"
	EventDependencyDegraded  EventType = "DEPENDENCY_DEGRADED"
)

// Severity grades a SecurityEvent.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarn:     1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// SecurityEvent is a persisted record of a notable security or system
// condition. It is never modified after creation.
type SecurityEvent struct {
	ID          uuid.UUID `json:"id"          db:"id"`
	Type        EventType `json:"type"        db:"event_type"`
	Severity    Severity  `json:"severity"    db:"severity"`
	Description string    `json:"description" db:"description"`
	Source      string    `json:"source"      db:"source"` // IP address or system tag
	Timestamp   time.Time `json:"timestamp"   db:"ts"`
}

// NewEvent builds a SecurityEvent stamped with a fresh ID and the current time.
func NewEvent(typ EventType, sev Severity, description, source string) *SecurityEvent {
	return &SecurityEvent{
		ID:          uuid.New(),
		Type:        typ,
		Severity:    sev,
		Description: description,
		Source:      source,
		Timestamp:   time.Now().UTC(),
	}
}

// Alert is a notification published on the Bus. Subject names the user the
// alert is about, or is empty for system-originated alerts.
type Alert struct {
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Subject     string    `json:"subject,omitempty"`
	Source      string    `json:"source,omitempty"`
}

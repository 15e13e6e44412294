// Package consent manages patient consent grants: a doctor requests access,
// the patient approves or rejects, and approved grants contribute their
// policy token to the disclosure policy of every new reading.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Grant.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Grant links a patient to a doctor. PatientID and DoctorID are usernames.
type Grant struct {
	ID          uuid.UUID  `json:"id"                   db:"id"`
	PatientID   string     `json:"patientId"            db:"patient_id"`
	DoctorID    string     `json:"doctorId"             db:"doctor_id"`
	Status      Status     `json:"status"               db:"status"`
	PolicyToken string     `json:"policyToken"          db:"policy_token"`
	RequestedAt time.Time  `json:"requestedAt"          db:"requested_at"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty" db:"approved_at"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"  db:"expires_at"`
}

// Active reports whether the grant is APPROVED and not expired at now.
func (g *Grant) Active(now time.Time) bool {
	if g.Status != StatusApproved {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

// NewPolicyToken returns a fresh opaque token of the form CONSENT_<8 hex>.
func NewPolicyToken() string {
	return "CONSENT_" + uuid.NewString()[:8]
}

package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds.
const (
	KindSession   = "session"
	KindEmergency = "emergency"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims of a vitalsguard token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
	Kind     string `json:"kind"`
	Patient  string `json:"patient,omitempty"` // emergency tokens only
	Reason   string `json:"reason,omitempty"`  // emergency tokens only
}

// SessionIssuer issues and verifies tokens signed with a shared HMAC secret.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSessionIssuer creates a SessionIssuer. ttl defaults to 8 hours.
func NewSessionIssuer(secret []byte, issuer string, ttl time.Duration) (*SessionIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &SessionIssuer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Issue creates a session token for username.
func (s *SessionIssuer) Issue(username, role string) (string, error) {
	return s.sign(username, role, KindSession, "", "", s.ttl)
}

// IssueEmergency creates a break-glass token scoped to one patient, valid
// for ttl.
func (s *SessionIssuer) IssueEmergency(username, role, patientID, reason string, ttl time.Duration) (string, error) {
	return s.sign(username, role, KindEmergency, patientID, reason, ttl)
}

func (s *SessionIssuer) sign(username, role, kind, patientID, reason string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Username: username,
		Role:     role,
		Kind:     kind,
		Patient:  patientID,
		Reason:   reason,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (s *SessionIssuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	switch claims.Kind {
	case KindSession:
	case KindEmergency:
		if claims.Patient == "" {
			return nil, fmt.Errorf("%w: emergency token without patient", ErrInvalidToken)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, claims.Kind)
	}
	return claims, nil
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmerrifield20/vitalsguard/internal/audit"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSuspended is returned when the system is locked down.
	ErrSuspended = errors.New("system lockdown: login temporarily disabled")
	// ErrInvalidInput is returned for malformed registration requests.
	ErrInvalidInput = errors.New("invalid user input")
	// ErrAttributeNotHeld is returned when revoking an attribute the user lacks.
	ErrAttributeNotHeld = errors.New("attribute not present")
)

// userRepo is the storage interface consumed by UserService.
type userRepo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetAttributes(ctx context.Context, userID uuid.UUID, attrs []string) error
}

// LoginGate is the part of the lockdown controller the login path uses.
type LoginGate interface {
	IsLockdown() bool
	Reason() string
	RecordFailedLogin(ctx context.Context, source string) error
	ResetFailedLogin(source string)
}

// EventRecorder persists security events.
type EventRecorder interface {
	Record(ctx context.Context, typ audit.EventType, sev audit.Severity, description, source string) (*audit.SecurityEvent, error)
}

// UserService implements account registration, login and attribute management.
type UserService struct {
	repo   userRepo
	gate   LoginGate
	events EventRecorder
	logger *zap.Logger
	cost   int
}

// NewUserService creates a new UserService hashing at bcrypt.DefaultCost.
func NewUserService(repo userRepo, gate LoginGate, events EventRecorder, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, gate: gate, events: events, logger: logger, cost: bcrypt.DefaultCost}
}

// SetPasswordCost sets the bcrypt cost for new password hashes. Values outside
// [bcrypt.MinCost, bcrypt.MaxCost] are ignored. Existing hashes keep their cost.
func (s *UserService) SetPasswordCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return
	}
	s.cost = cost
}

// Register creates a new account. Registration is refused during lockdown.
func (s *UserService) Register(ctx context.Context, username, password, role, department string, attrs []string) (*User, error) {
	if s.gate.IsLockdown() {
		return nil, ErrSuspended
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	r, ok := ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         r,
		Department:   department,
		Attributes:   attrs,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("username", u.Username), zap.String("role", string(u.Role)))
	return u, nil
}

// Login verifies credentials presented from source. A failure counts towards
// the lockdown threshold for source; a success clears it. While locked down
// only administrators may log in, so a lockdown can still be lifted.
func (s *UserService) Login(ctx context.Context, username, password, source string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		if err := s.gate.RecordFailedLogin(ctx, source); err != nil {
			s.logger.Warn("record failed login", zap.String("source", source), zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}

	if s.gate.IsLockdown() && u.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: %s", ErrSuspended, s.gate.Reason())
	}

	s.gate.ResetFailedLogin(source)
	s.logger.Info("user logged in", zap.String("username", u.Username), zap.String("source", source))
	return u, nil
}

// FindUser looks up a user by username. It returns ErrNotFound for unknown users.
func (s *UserService) FindUser(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// RevokeAttribute removes attribute from username and records an
// ATTRIBUTE_REVOCATION event naming the administrator.
func (s *UserService) RevokeAttribute(ctx context.Context, username, attribute, admin, source string) error {
	if username == "" || attribute == "" {
		return fmt.Errorf("%w: username and attribute are required", ErrInvalidInput)
	}
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !u.HasAttribute(attribute) {
		return ErrAttributeNotHeld
	}

	kept := make([]string, 0, len(u.Attributes))
	for _, a := range u.Attributes {
		if a != attribute {
			kept = append(kept, a)
		}
	}
	if err := s.repo.SetAttributes(ctx, u.ID, kept); err != nil {
		return fmt.Errorf("revoke attribute: %w", err)
	}

	desc := fmt.Sprintf("Admin %s revoked '%s' from user %s", admin, attribute, username)
	if _, err := s.events.Record(ctx, audit.EventAttributeRevocation, audit.SeverityHigh, desc, source); err != nil {
		return fmt.Errorf("attribute revoked but event not recorded: %w", err)
	}
	return nil
}

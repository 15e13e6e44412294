package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a user's clinical or administrative role.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RoleNurse   Role = "NURSE"
	RolePatient Role = "PATIENT"
)

// ParseRole normalises s to a known Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RolePatient:
		return r, true
	}
	return "", false
}

// IsClinician reports whether r may read patient data under consent.
func (r Role) IsClinician() bool {
	return r == RoleDoctor || r == RoleNurse
}

// User is an account holder: a patient, a clinician or an administrator.
type User struct {
	ID           uuid.UUID `json:"id"           db:"id"`
	Username     string    `json:"username"     db:"username"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	Role         Role      `json:"role"         db:"role"`
	Department   string    `json:"department"   db:"department"`
	Attributes   []string  `json:"attributes"   db:"attributes"` // e.g. "Department:Cardiology"
	CreatedAt    time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"   db:"updated_at"`
}

// HasAttribute reports whether the user holds attr.
func (u *User) HasAttribute(attr string) bool {
	for _, a := range u.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// Package identity issues and verifies HS256 session tokens and provides the
// gin middleware that authenticates API callers with them.
//
// Two token kinds exist: ordinary session tokens issued at login, and
// short-lived emergency tokens issued by the break-glass override. Both
// carry the username and role of the bearer.
package identity

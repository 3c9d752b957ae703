package auth

import (
	"context"
	"strings"
)

// Record is a local user record as seen by the core.
type Record interface {
	// SetPassword sets the transient password fields. They are never persisted.
	SetPassword(password, confirmation string)

	// ClearResetPasswordToken drops any pending password reset token.
	ClearResetPasswordToken()

	// IsNew reports whether the record has not been persisted yet.
	IsNew() bool
}

// Entry is a directory entry: attribute name to values.
type Entry map[string][]string

// Get returns the values of attr, matching names case-insensitively as LDAP does.
func (e Entry) Get(attr string) ([]string, bool) {
	if values, ok := e[attr]; ok {
		return values, true
	}
	for name, values := range e {
		if strings.EqualFold(name, attr) {
			return values, true
		}
	}
	return nil, false
}

// Directory is the LDAP directory client the core delegates to.
//
// Implementations report rejected credentials from ValidCredentials as false
// with a nil error. Entry wraps ErrInvalidCredentials or ErrEntryNotFound for
// the same class of failure. Any other error is treated as fatal.
type Directory interface {
	ValidCredentials(ctx context.Context, login, password string) (bool, error)
	Entry(ctx context.Context, login, password string) (Entry, error)
	UpdatePassword(ctx context.Context, login, newPassword string) error

	// Attribute returns nil values when the entry lacks the attribute.
	Attribute(ctx context.Context, login, name string) ([]string, error)
	Groups(ctx context.Context, login string) ([]string, error)
	DN(ctx context.Context, login string) (string, error)
}

// Store persists local user records.
type Store interface {
	// FindBy returns ErrRecordNotFound when no record has key == value.
	FindBy(ctx context.Context, key, value string) (Record, error)
	New() Record

	// Save persists rec. Validation and constraint failures satisfy ValidationFailure.
	Save(ctx context.Context, rec Record) error
	Valid(rec Record) bool
	Fields() *Fields
}

// KeyedStore is implemented by stores that can look records up by some
// fields only. NewAuthenticator rejects an authentication key outside them.
type KeyedStore interface {
	IsLookupKey(key string) bool
}

// Sink receives diagnostics. Implementations must not block or panic.
type Sink interface {
	Warn(msg string, fields map[string]any)
}

// ValidationFailure is implemented by store errors that describe invalid
// records rather than broken storage.
type ValidationFailure interface {
	error
	ValidationErrors() []string
}

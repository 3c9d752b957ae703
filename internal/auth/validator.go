package auth

import (
	"context"
	"strings"
)

// Validator checks a login and password against the directory.
type Validator struct {
	config    *Config
	directory Directory
}

// NewValidator creates a Validator.
func NewValidator(config *Config, directory Directory) *Validator {
	return &Validator{config: config, directory: directory}
}

// ValidCredentials reports whether the directory accepts a bind as login.
// Rejections are false with a nil error; other directory failures are returned
// as *DirectoryError.
func (v *Validator) ValidCredentials(ctx context.Context, login, password string) (bool, error) {
	// An empty password would be an unauthenticated bind, which LDAP servers accept.
	if strings.TrimSpace(login) == "" || password == "" {
		return false, nil
	}

	ok, err := v.directory.ValidCredentials(ctx, login, password)
	if err != nil {
		if isRejection(err) {
			return false, nil
		}
		return false, &DirectoryError{Op: "bind", Login: login, Err: err}
	}
	return ok, nil
}

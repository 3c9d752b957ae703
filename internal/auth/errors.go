package auth

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrRecordNotFound is returned by Store.FindBy when no record matches.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidCredentials marks a directory failure caused by rejected credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEntryNotFound marks a directory failure caused by an unknown login.
	ErrEntryNotFound = errors.New("directory entry not found")
)

// DirectoryError is a fatal directory failure, distinct from a rejected login.
type DirectoryError struct {
	Op    string
	Login string
	Err   error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory %s for %q: %v", e.Op, e.Login, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// StoreError is a fatal user store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WarningKind classifies attribute synchronization warnings.
type WarningKind string

const (
	WarningUnknownModelAttribute WarningKind = "unknown_model_attribute"
	WarningUnknownLDAPAttribute  WarningKind = "unknown_ldap_attribute"
	WarningSetFailed             WarningKind = "set_failed"
	WarningSaveFailed            WarningKind = "save_failed"
)

// Warning is a recoverable problem found while synchronizing attributes.
type Warning struct {
	Kind      WarningKind
	Attribute string
	Err       error
}

func (w Warning) Error() string {
	switch w.Kind {
	case WarningUnknownModelAttribute:
		return "LDAP warning: unknown model attribute " + w.Attribute
	case WarningUnknownLDAPAttribute:
		return "LDAP warning: unknown LDAP attribute " + w.Attribute
	case WarningSetFailed:
		return fmt.Sprintf("LDAP warning: could not set model attribute %s: %v", w.Attribute, w.Err)
	case WarningSaveFailed:
		return fmt.Sprintf("LDAP warning: could not update model attributes: %v", w.Err)
	default:
		return fmt.Sprintf("LDAP warning: %s %s", w.Kind, w.Attribute)
	}
}

func (w Warning) Unwrap() error {
	return w.Err
}

// WarningsError folds warnings into a single error, nil when there are none.
func WarningsError(warnings []Warning) error {
	var result *multierror.Error
	for _, w := range warnings {
		result = multierror.Append(result, w)
	}
	return result.ErrorOrNil()
}

// isRejection reports whether a directory error means the login was refused.
func isRejection(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrEntryNotFound)
}

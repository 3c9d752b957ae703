package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ValidationError reports a record that cannot be saved as it stands.
type ValidationError struct {
	Errors []string
	Cause  error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// ValidationErrors returns the individual failure messages.
func (e *ValidationError) ValidationErrors() []string {
	return e.Errors
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// newValidationError converts validator failures into readable messages.
func newValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return &ValidationError{Errors: messages, Cause: err}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " is not a valid email address"
	case "eqfield":
		return fe.Field() + " does not match"
	case "max":
		return fmt.Sprintf("%s is too long (maximum is %s)", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s is too short (minimum is %s)", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// pgUniqueViolation is the postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// isDuplicateKey reports unique index violations from either dialect.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// duplicateKeyError names the unique column that was violated when the
// driver reports it.
func duplicateKeyError(err error) *ValidationError {
	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg = pgErr.ConstraintName
	}
	for _, column := range []string{"email", "username", "reset_password_token"} {
		if strings.Contains(msg, "users."+column) || strings.Contains(msg, "idx_users_"+column) {
			return &ValidationError{Errors: []string{column + " has already been taken"}, Cause: err}
		}
	}
	return &ValidationError{Errors: []string{"record already exists"}, Cause: err}
}

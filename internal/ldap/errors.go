package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrUserNotFound is returned when no directory entry matches a login.
var ErrUserNotFound = errors.New("user not found in directory")

// ErrAmbiguousUser is returned when a login matches more than one entry.
var ErrAmbiguousUser = errors.New("login matches more than one directory entry")

// ErrorCategory groups LDAP failures by how callers react to them.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// LDAPError carries the operation, result code and classification of a failure.
type LDAPError struct {
	Operation string
	Category  ErrorCategory
	LDAPCode  uint16
	Message   string
	ServerMsg string
	DN        string
	Retryable bool
	Cause     error
}

func (e *LDAPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LDAP %s failed", e.Operation)
	if e.LDAPCode > 0 {
		fmt.Fprintf(&b, " (code %d)", e.LDAPCode)
	}
	if e.Message != "" {
		b.WriteString(" - " + e.Message)
	}
	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		b.WriteString(" - server: " + e.ServerMsg)
	}
	if e.DN != "" {
		b.WriteString(" - DN: " + e.DN)
	}
	return b.String()
}

func (e *LDAPError) IsRetryable() bool { return e.Retryable }

func (e *LDAPError) Unwrap() error { return e.Cause }

// NewLDAPError classifies err for operation. It returns nil for a nil err.
func NewLDAPError(operation string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	e := &LDAPError{Operation: operation, Cause: err}

	var resultErr *ldap.Error
	switch {
	case errors.Is(err, ErrUserNotFound):
		e.Category = ErrorCategoryNotFound
		e.Message = err.Error()
	case errors.Is(err, ldap.ErrSizeLimitExceeded):
		// go-ldap reports a client-enforced limit with a network result code.
		e.LDAPCode = ldap.LDAPResultSizeLimitExceeded
		e.Category = ErrorCategoryUnknown
		e.Message = resultMessage(ldap.LDAPResultSizeLimitExceeded)
	case errors.As(err, &resultErr):
		e.LDAPCode = resultErr.ResultCode
		e.DN = resultErr.MatchedDN
		if resultErr.Err != nil {
			e.ServerMsg = resultErr.Err.Error()
		}
		e.Category = categorizeError(resultErr.ResultCode)
		e.Retryable = isLDAPCodeRetryable(resultErr.ResultCode)
		e.Message = resultMessage(resultErr.ResultCode)
	default:
		e.Category = categorizeGenericError(err)
		e.Retryable = isGenericErrorRetryable(err)
		e.Message = err.Error()
	}
	return e
}

var resultCategories = map[uint16]ErrorCategory{
	ldap.LDAPResultInvalidCredentials:          ErrorCategoryAuthentication,
	ldap.LDAPResultInappropriateAuthentication: ErrorCategoryAuthentication,
	ldap.LDAPResultStrongAuthRequired:          ErrorCategoryAuthentication,

	ldap.LDAPResultInsufficientAccessRights: ErrorCategoryPermission,
	ldap.LDAPResultUnwillingToPerform:       ErrorCategoryPermission,

	ldap.LDAPResultNoSuchObject:           ErrorCategoryNotFound,
	ldap.LDAPResultNoSuchAttribute:        ErrorCategoryNotFound,
	ldap.LDAPResultUndefinedAttributeType: ErrorCategoryNotFound,

	ldap.LDAPResultInvalidAttributeSyntax: ErrorCategoryValidation,
	ldap.LDAPResultConstraintViolation:    ErrorCategoryValidation,
	ldap.LDAPResultInvalidDNSyntax:        ErrorCategoryValidation,
	ldap.LDAPResultNamingViolation:        ErrorCategoryValidation,
	ldap.LDAPResultFilterError:            ErrorCategoryValidation,

	ldap.LDAPResultServerDown:         ErrorCategoryServer,
	ldap.LDAPResultUnavailable:        ErrorCategoryServer,
	ldap.LDAPResultBusy:               ErrorCategoryServer,
	ldap.LDAPResultTimeLimitExceeded:  ErrorCategoryServer,
	ldap.LDAPResultAdminLimitExceeded: ErrorCategoryServer,

	ldap.LDAPResultConnectError:  ErrorCategoryConnection,
	ldap.LDAPResultProtocolError: ErrorCategoryConnection,
	ldap.LDAPResultTimeout:       ErrorCategoryConnection,
	ldap.ErrorNetwork:            ErrorCategoryConnection,
}

func categorizeError(code uint16) ErrorCategory {
	if category, ok := resultCategories[code]; ok {
		return category
	}
	return ErrorCategoryUnknown
}

// Errors from outside go-ldap (dialing, TLS, SRV lookups) are classified by
// their text.
var genericPatterns = []struct {
	substr   string
	category ErrorCategory
}{
	{"connection", ErrorCategoryConnection},
	{"network", ErrorCategoryConnection},
	{"timeout", ErrorCategoryConnection},
	{"broken pipe", ErrorCategoryConnection},
	{"no such host", ErrorCategoryConnection},
	{"invalid credentials", ErrorCategoryAuthentication},
	{"permission", ErrorCategoryPermission},
	{"denied", ErrorCategoryPermission},
}

func categorizeGenericError(err error) ErrorCategory {
	msg := strings.ToLower(err.Error())
	for _, p := range genericPatterns {
		if strings.Contains(msg, p.substr) {
			return p.category
		}
	}
	return ErrorCategoryUnknown
}

func isLDAPCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError,
		ldap.LDAPResultTimeout,
		ldap.ErrorNetwork:
		return true
	}
	return false
}

func isGenericErrorRetryable(err error) bool {
	if categorizeGenericError(err) == ErrorCategoryConnection {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "temporar")
}

// resultMessage names a result code using go-ldap's table.
func resultMessage(code uint16) string {
	if msg, ok := ldap.LDAPResultCodeMap[code]; ok {
		return msg
	}
	return fmt.Sprintf("result code %d", code)
}

// WrapError classifies err for operation unless it already is an *LDAPError.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		if ldapErr.Operation == "" {
			ldapErr.Operation = operation
		}
		return err
	}
	return NewLDAPError(operation, err)
}

// IsRetryableError reports whether retrying the operation may succeed.
func IsRetryableError(err error) bool {
	if err == nil || IsSizeLimitError(err) {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return isLDAPCodeRetryable(resultErr.ResultCode)
	}
	return isGenericErrorRetryable(err)
}

// GetErrorCategory returns the category of err.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}
	if errors.Is(err, ErrUserNotFound) {
		return ErrorCategoryNotFound
	}
	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return categorizeError(resultErr.ResultCode)
	}
	return categorizeGenericError(err)
}

// IsNotFoundError reports a missing entry, attribute or search base.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsAuthenticationError reports rejected credentials.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// IsSizeLimitError reports a search cut short by its size limit.
func IsSizeLimitError(err error) bool {
	if errors.Is(err, ldap.ErrSizeLimitExceeded) {
		return true
	}
	var resultErr *ldap.Error
	return errors.As(err, &resultErr) && resultErr.ResultCode == ldap.LDAPResultSizeLimitExceeded
}

// Package logging provides the structured logger shared by the directory client,
// the user store and the authentication core.
package logging

import (
	"errors"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// Logger interface for directory, store and authentication operations.
type Logger interface {
	Trace(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)

	// Named returns a sub-logger for a subsystem such as "ldap" or "store".
	Named(name string) Logger
}

// HCLogger wraps hclog for use across the module.
type HCLogger struct {
	l hclog.Logger
}

// Options configures a new HCLogger.
type Options struct {
	Name   string
	Level  string // trace, debug, info, warn, error
	JSON   bool
	Output io.Writer
}

// New creates a logger writing to opts.Output (stderr when nil).
func New(opts Options) *HCLogger {
	return &HCLogger{
		l: hclog.New(&hclog.LoggerOptions{
			Name:       opts.Name,
			Level:      hclog.LevelFromString(opts.Level),
			JSONFormat: opts.JSON,
			Output:     opts.Output,
		}),
	}
}

// NewNullLogger returns a logger that discards everything.
func NewNullLogger() *HCLogger {
	return &HCLogger{l: hclog.NewNullLogger()}
}

func (h *HCLogger) Trace(msg string, fields map[string]any) {
	h.l.Trace(msg, toArgs(fields)...)
}

func (h *HCLogger) Debug(msg string, fields map[string]any) {
	h.l.Debug(msg, toArgs(fields)...)
}

func (h *HCLogger) Info(msg string, fields map[string]any) {
	h.l.Info(msg, toArgs(fields)...)
}

func (h *HCLogger) Warn(msg string, fields map[string]any) {
	h.l.Warn(msg, toArgs(fields)...)
}

func (h *HCLogger) Error(msg string, fields map[string]any) {
	h.l.Error(msg, toArgs(fields)...)
}

func (h *HCLogger) Named(name string) Logger {
	return &HCLogger{l: h.l.Named(name)}
}

// toArgs flattens fields into hclog key/value pairs in stable key order,
// redacting sensitive values.
func toArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(fields))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, redact(k, fields[k]))
	}
	return args
}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(logger Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	logger.Debug("Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		logger.Error("Operation failed", fields)
	} else {
		logger.Debug("Operation completed successfully", fields)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(logger Logger, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		fields["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			fields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	logger.Error("LDAP operation failed", fields)
}

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"password":              true,
	"password_confirmation": true,
	"new_password":          true,
	"passwd":                true,
	"bind_password":         true,
	"secret":                true,
	"token":                 true,
	"reset_password_token":  true,
	"private_key":           true,
	"credentials":           true,
}

// sensitivePatterns catch secrets embedded in free text such as DSNs.
var sensitivePatterns = []string{"password=", "passwd=", "secret=", "token="}

// redact hides the value of a sensitive key or of text embedding a secret.
func redact(key string, value any) any {
	if sensitiveKeys[strings.ToLower(key)] {
		return redacted
	}
	if s, ok := value.(string); ok {
		lower := strings.ToLower(s)
		for _, pattern := range sensitivePatterns {
			if strings.Contains(lower, pattern) {
				return redacted
			}
		}
	}
	return value
}

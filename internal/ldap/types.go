package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig configures the service-account connection pool and the
// dedicated connections used for user binds.
type ConnectionConfig struct {
	// Domain is resolved through SRV records when LDAPURLs is empty.
	Domain   string
	LDAPURLs []string
	Timeout  time.Duration

	// Service account. Username is a bind DN, a UPN or a Kerberos principal.
	Username       string
	Password       string
	KerberosRealm  string
	KerberosKeytab string
	KerberosConfig string // krb5.conf
	KerberosCCache string
	KerberosSPN    string

	TLSConfig         *tls.Config
	UseTLS            bool
	SkipTLS           bool // plain ldap:// without StartTLS
	TLSClientCertFile string
	TLSClientKeyFile  string

	MaxConnections int
	MaxIdleTime    time.Duration
	HealthCheck    time.Duration

	// Retries apply to retryable failures only; see IsRetryableError.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig returns the defaults: TLS 1.2 or later with verification,
// ten pooled connections and three retries.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:        30 * time.Second,
		UseTLS:         true,
		MaxConnections: 10,
		MaxIdleTime:    5 * time.Minute,
		HealthCheck:    30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// AuthMethod is how the service account binds.
type AuthMethod string

const (
	AuthMethodSimpleBind AuthMethod = "simple"
	AuthMethodKerberos   AuthMethod = "kerberos"
	AuthMethodExternal   AuthMethod = "external" // TLS client certificate
)

// ServiceAuthMethod picks the bind method for pooled connections. Kerberos
// wins over a password when a realm is configured.
func (c *ConnectionConfig) ServiceAuthMethod() AuthMethod {
	switch {
	case c.hasKerberos():
		return AuthMethodKerberos
	case c.Username != "" && c.Password != "":
		return AuthMethodSimpleBind
	case c.TLSClientCertFile != "" && c.TLSClientKeyFile != "":
		return AuthMethodExternal
	default:
		return AuthMethodSimpleBind
	}
}

// HasServiceAccount reports whether pooled connections bind at all.
// Without one they stay anonymous.
func (c *ConnectionConfig) HasServiceAccount() bool {
	return c.hasKerberos() ||
		(c.Username != "" && c.Password != "") ||
		(c.TLSClientCertFile != "" && c.TLSClientKeyFile != "")
}

func (c *ConnectionConfig) hasKerberos() bool {
	return c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.Username != "")
}

// PooledConnection is a service-account connection on loan from the pool.
type PooledConnection struct {
	conn          *ldap.Conn
	lastUsed      time.Time
	healthy       bool
	authenticated bool
	authTime      time.Time
	serverInfo    *ServerInfo
	returnToPool  func(*PooledConnection)
}

// ServerInfo is one directory server, from config, SRV records or fallback.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // srv, config or fallback
}

// ConnectionPool hands out service-account connections.
type ConnectionPool interface {
	Get(ctx context.Context) (*PooledConnection, error)

	// Dial opens an unauthenticated connection outside the pool for a user
	// bind. The caller closes it.
	Dial(ctx context.Context) (*ldap.Conn, error)

	Close() error
	Stats() PoolStats
	HealthCheck(ctx context.Context) error
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Total   int
	Active  int64
	Idle    int
	Created int64
	Errors  int64
	Uptime  time.Duration
}

// Client is the directory client used by Directory.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	// Bind authenticates a pooled connection as username.
	Bind(ctx context.Context, username, password string) error
	// BindAs checks dn and password on a dedicated connection.
	BindAs(ctx context.Context, dn, password string) error

	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	// SearchAs binds as dn on a dedicated connection, then searches.
	SearchAs(ctx context.Context, dn, password string, req *SearchRequest) (*SearchResult, error)
	Modify(ctx context.Context, req *ModifyRequest) error
	// PasswordModify sets the password of dn with the RFC 3062 extended operation.
	PasswordModify(ctx context.Context, dn, newPassword string) error

	Ping(ctx context.Context) error
	Stats() PoolStats
}

// SearchRequest is a search without alias dereferencing.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
	TimeLimit  time.Duration
}

// SearchResult holds the entries of a search. HasMore is set when the
// size limit was reached.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
	HasMore bool
}

// ModifyRequest changes attributes of DN.
type ModifyRequest struct {
	DN                string
	AddAttributes     map[string][]string
	ReplaceAttributes map[string][]string
	DeleteAttributes  []string
}

// SearchScope mirrors the RFC 4511 scope values.
type SearchScope int

const (
	ScopeBaseObject   SearchScope = ldap.ScopeBaseObject
	ScopeSingleLevel  SearchScope = ldap.ScopeSingleLevel
	ScopeWholeSubtree SearchScope = ldap.ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	}
	return "unknown"
}

// RetryableError is implemented by errors that know whether a retry may help.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError is a failure to reach or set up a directory connection.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

// NewConnectionError returns a ConnectionError wrapping cause, which may be nil.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{message: message, retryable: retryable, cause: cause}
}

func (e *ConnectionError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *ConnectionError) IsRetryable() bool { return e.retryable }

func (e *ConnectionError) Unwrap() error { return e.cause }

// Package config loads ldapauth settings from a config file and LDAPAUTH_*
// environment variables.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/isometry/ldapauth/internal/auth"
	"github.com/isometry/ldapauth/internal/ldap"
	"github.com/isometry/ldapauth/internal/logging"
	"github.com/isometry/ldapauth/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. LDAPAUTH_LDAP_BASE_DN.
const EnvPrefix = "LDAPAUTH"

// Config is the complete process configuration.
//
// Example YAML:
//
//	ldap:
//	  urls: ["ldaps://ldap.example.com"]
//	  bind_dn: cn=svc-ldapauth,ou=services,dc=example,dc=com
//	  base_dn: ou=people,dc=example,dc=com
//	auth:
//	  authentication_key: email
//	  auto_create_user: true
//	  attribute_mapping:
//	    - {ldap: cn, model: full_name}
//	    - {ldap: telephoneNumber, model: phone}
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	LDAP     LDAPConfig     `mapstructure:"ldap"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LogConfig sets the level and format of the hclog output.
type LogConfig struct {
	Level string `mapstructure:"level" default:"info"`
	JSON  bool   `mapstructure:"json"`
}

// LDAPConfig covers both the connection and the directory layout.
type LDAPConfig struct {
	// Connection
	Domain  string        `mapstructure:"domain"`
	URLs    []string      `mapstructure:"urls"`
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`

	// Service account
	BindDN         string `mapstructure:"bind_dn"`
	BindPassword   string `mapstructure:"bind_password"`
	KerberosRealm  string `mapstructure:"kerberos_realm"`
	KerberosKeytab string `mapstructure:"kerberos_keytab"`
	KerberosConfig string `mapstructure:"kerberos_config"`
	KerberosCCache string `mapstructure:"kerberos_ccache"`
	KerberosSPN    string `mapstructure:"kerberos_spn"`

	// TLS
	UseTLS             bool   `mapstructure:"use_tls" default:"true"`
	SkipTLS            bool   `mapstructure:"skip_tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CACertFile         string `mapstructure:"ca_cert_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`

	// Pool and retry
	MaxConnections int           `mapstructure:"max_connections" default:"10"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time" default:"5m"`
	HealthCheck    time.Duration `mapstructure:"health_check" default:"30s"`
	MaxRetries     int           `mapstructure:"max_retries" default:"3"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" default:"500ms"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" default:"30s"`

	// Directory layout
	BaseDN               string        `mapstructure:"base_dn"`
	LoginAttribute       string        `mapstructure:"login_attribute" default:"mail"`
	UserFilter           string        `mapstructure:"user_filter"`
	DirectBind           bool          `mapstructure:"direct_bind"`
	GroupBaseDN          string        `mapstructure:"group_base_dn"`
	GroupMemberAttribute string        `mapstructure:"group_member_attribute" default:"member"`
	RequiredGroup        string        `mapstructure:"required_group"`
	PasswordMethod       string        `mapstructure:"password_method" default:"exop"`
	Attributes           []string      `mapstructure:"attributes"`
	SearchTimeout        time.Duration `mapstructure:"search_timeout" default:"10s"`
}

// AuthConfig drives the Authenticator. AuthenticationKey must be a lookup
// field of the user store.
type AuthConfig struct {
	AuthenticationKey string              `mapstructure:"authentication_key" default:"email"`
	AutoCreateUser    bool                `mapstructure:"auto_create_user"`
	UpdatePassword    bool                `mapstructure:"update_password"`
	AttributeMapping  []auth.AttributeMap `mapstructure:"attribute_mapping"`
}

// DatabaseConfig selects the gorm driver for the user store.
type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver" default:"sqlite"`
	DSN           string        `mapstructure:"dsn" default:"ldapauth.db"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold" default:"200ms"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
}

// MetricsConfig controls where Prometheus counters are written.
type MetricsConfig struct {
	// Textfile, when set, receives the counters in Prometheus text format
	// on exit, for the node_exporter textfile collector.
	Textfile string `mapstructure:"textfile"`
}

// Load reads path (or ldapauth.{yaml,toml,json} from the usual locations
// when path is empty), applies LDAPAUTH_* overrides and defaults, and
// validates the result. v may carry flag bindings; nil uses a fresh viper.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, "", reflect.TypeOf(Config{}))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ldapauth")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ldapauth")
		v.AddConfigPath("/etc/ldapauth")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers every leaf key so AutomaticEnv applies to Unmarshal.
func bindEnvs(v *viper.Viper, prefix string, t reflect.Type) {
	for i := range t.NumField() {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnvs(v, key, field.Type)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var result *multierror.Error

	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}

	if c.LDAP.Domain == "" && len(c.LDAP.URLs) == 0 {
		result = multierror.Append(result, errors.New("ldap.domain or ldap.urls is required"))
	}
	if c.LDAP.BaseDN == "" {
		result = multierror.Append(result, errors.New("ldap.base_dn is required"))
	}
	if !ldap.PasswordMethod(c.LDAP.PasswordMethod).Valid() {
		result = multierror.Append(result, fmt.Errorf("ldap.password_method %q must be exop or ad", c.LDAP.PasswordMethod))
	}
	if c.LDAP.BindDN != "" && c.LDAP.BindPassword == "" && c.LDAP.KerberosRealm == "" {
		result = multierror.Append(result, errors.New("ldap.bind_password is required with ldap.bind_dn"))
	}
	if (c.LDAP.ClientCertFile == "") != (c.LDAP.ClientKeyFile == "") {
		result = multierror.Append(result, errors.New("ldap.client_cert_file and ldap.client_key_file must be set together"))
	}

	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		result = multierror.Append(result, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}

	if err := c.AuthConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	} else if !store.IsLookupKey(c.Auth.AuthenticationKey) {
		result = multierror.Append(result, fmt.Errorf("%w: auth.authentication_key %q is not a lookup field", auth.ErrInvalidConfig, c.Auth.AuthenticationKey))
	}

	return result.ErrorOrNil()
}

// HasServiceAccount reports whether searches can run with a service bind.
func (c *Config) HasServiceAccount() bool {
	return c.LDAP.BindDN != "" || c.LDAP.KerberosRealm != ""
}

// LDAPConnection builds the directory client configuration.
func (c *Config) LDAPConnection() (*ldap.ConnectionConfig, error) {
	conn := ldap.DefaultConfig()

	conn.Domain = c.LDAP.Domain
	conn.LDAPURLs = c.LDAP.URLs
	conn.Timeout = c.LDAP.Timeout

	conn.Username = c.LDAP.BindDN
	conn.Password = c.LDAP.BindPassword
	conn.KerberosRealm = c.LDAP.KerberosRealm
	conn.KerberosKeytab = c.LDAP.KerberosKeytab
	conn.KerberosConfig = c.LDAP.KerberosConfig
	conn.KerberosCCache = c.LDAP.KerberosCCache
	conn.KerberosSPN = c.LDAP.KerberosSPN

	conn.UseTLS = c.LDAP.UseTLS
	conn.SkipTLS = c.LDAP.SkipTLS
	conn.TLSClientCertFile = c.LDAP.ClientCertFile
	conn.TLSClientKeyFile = c.LDAP.ClientKeyFile

	conn.MaxConnections = c.LDAP.MaxConnections
	conn.MaxIdleTime = c.LDAP.MaxIdleTime
	conn.HealthCheck = c.LDAP.HealthCheck
	conn.MaxRetries = c.LDAP.MaxRetries
	conn.InitialBackoff = c.LDAP.InitialBackoff
	conn.MaxBackoff = c.LDAP.MaxBackoff

	tlsConfig, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	conn.TLSConfig = tlsConfig

	return conn, nil
}

func (c *Config) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.LDAP.InsecureSkipVerify,
	}

	if c.LDAP.CACertFile != "" {
		pem, err := os.ReadFile(c.LDAP.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.LDAP.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// LDAPDirectory builds the directory layout. Without a service account
// user DNs are derived from the login instead of searched for.
func (c *Config) LDAPDirectory() ldap.DirectoryConfig {
	return ldap.DirectoryConfig{
		BaseDN:               c.LDAP.BaseDN,
		LoginAttribute:       c.LDAP.LoginAttribute,
		UserFilter:           c.LDAP.UserFilter,
		DirectBind:           c.LDAP.DirectBind || !c.HasServiceAccount(),
		GroupBaseDN:          c.LDAP.GroupBaseDN,
		GroupMemberAttribute: c.LDAP.GroupMemberAttribute,
		RequiredGroup:        c.LDAP.RequiredGroup,
		PasswordMethod:       ldap.PasswordMethod(c.LDAP.PasswordMethod),
		Attributes:           c.LDAP.Attributes,
		SearchTimeout:        c.LDAP.SearchTimeout,
	}
}

// AuthConfig builds the core configuration.
func (c *Config) AuthConfig() *auth.Config {
	return &auth.Config{
		AuthenticationKey: c.Auth.AuthenticationKey,
		AutoCreateUser:    c.Auth.AutoCreateUser,
		UpdatePassword:    c.Auth.UpdatePassword,
		AttributeMapping:  auth.AttributeMapping(c.Auth.AttributeMapping),
	}
}

// DatabaseOptions builds the store connection options.
func (c *Config) DatabaseOptions() store.Options {
	return store.Options{
		Driver:        c.Database.Driver,
		DSN:           c.Database.DSN,
		SlowThreshold: c.Database.SlowThreshold,
		MaxOpenConns:  c.Database.MaxOpenConns,
	}
}

// LogOptions builds the logger options.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Name:  "ldapauth",
		Level: c.Log.Level,
		JSON:  c.Log.JSON,
	}
}

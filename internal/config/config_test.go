package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/ldapauth/internal/auth"
	"github.com/isometry/ldapauth/internal/ldap"
)

const sampleYAML = `
log:
  level: debug
ldap:
  urls:
    - ldaps://ldap1.example.com
    - ldaps://ldap2.example.com
  bind_dn: cn=svc-ldapauth,ou=services,dc=example,dc=com
  bind_password: s3rvice
  base_dn: ou=people,dc=example,dc=com
  required_group: cn=staff,ou=groups,dc=example,dc=com
  search_timeout: 5s
auth:
  authentication_key: email
  auto_create_user: true
  attribute_mapping:
    - {ldap: cn, model: full_name}
    - {ldap: telephoneNumber, model: phone}
database:
  driver: postgres
  dsn: postgres://ldapauth@localhost/ldapauth
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(nil, writeConfig(t, "ldapauth.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"ldaps://ldap1.example.com", "ldaps://ldap2.example.com"}, cfg.LDAP.URLs)
	assert.Equal(t, 5*time.Second, cfg.LDAP.SearchTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)

	// defaults survive where the file is silent
	assert.True(t, cfg.LDAP.UseTLS)
	assert.Equal(t, "mail", cfg.LDAP.LoginAttribute)
	assert.Equal(t, 30*time.Second, cfg.LDAP.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Database.SlowThreshold)

	assert.Equal(t, &auth.Config{
		AuthenticationKey: "email",
		AutoCreateUser:    true,
		AttributeMapping: auth.AttributeMapping{
			{LDAP: "cn", Model: "full_name"},
			{LDAP: "telephoneNumber", Model: "phone"},
		},
	}, cfg.AuthConfig())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LDAPAUTH_LDAP_BIND_PASSWORD", "from-env")
	t.Setenv("LDAPAUTH_LDAP_USE_TLS", "false")
	t.Setenv("LDAPAUTH_AUTH_UPDATE_PASSWORD", "true")
	t.Setenv("LDAPAUTH_DATABASE_MAX_OPEN_CONNS", "4")

	cfg, err := Load(nil, writeConfig(t, "ldapauth.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LDAP.BindPassword)
	assert.False(t, cfg.LDAP.UseTLS)
	assert.True(t, cfg.Auth.UpdatePassword)
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LDAPAUTH_LDAP_DOMAIN", "example.com")
	t.Setenv("LDAPAUTH_LDAP_BASE_DN", "dc=example,dc=com")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "example.com", cfg.LDAP.Domain)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_FlagBinding(t *testing.T) {
	v := viper.New()
	v.Set("log.level", "trace")

	cfg, err := Load(v, writeConfig(t, "ldapauth.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")

	_, err = Load(nil, writeConfig(t, "bad.yaml", "ldap: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(nil, writeConfig(t, "ldapauth.yaml", sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.Log.Level = "loud"
	cfg.LDAP.URLs = nil
	cfg.LDAP.PasswordMethod = "md5"
	cfg.Database.Driver = "oracle"
	cfg.Auth.AuthenticationKey = ""

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"log.level",
		"ldap.domain or ldap.urls",
		"ldap.password_method",
		"database.driver",
		"authentication key is required",
	} {
		assert.ErrorContains(t, err, want)
	}
	assert.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestValidate_AuthenticationKeyNotLookupField(t *testing.T) {
	cfg, err := Load(nil, writeConfig(t, "ldapauth.yaml", sampleYAML))
	require.NoError(t, err)

	cfg.Auth.AuthenticationKey = "full_name"
	err = cfg.Validate()
	assert.ErrorIs(t, err, auth.ErrInvalidConfig)
	assert.ErrorContains(t, err, `auth.authentication_key "full_name" is not a lookup field`)

	cfg.Auth.AuthenticationKey = "username"
	assert.NoError(t, cfg.Validate())
}

func TestLDAPTranslators(t *testing.T) {
	cfg, err := Load(nil, writeConfig(t, "ldapauth.yaml", sampleYAML))
	require.NoError(t, err)

	conn, err := cfg.LDAPConnection()
	require.NoError(t, err)
	assert.Equal(t, cfg.LDAP.URLs, conn.LDAPURLs)
	assert.Equal(t, "cn=svc-ldapauth,ou=services,dc=example,dc=com", conn.Username)
	assert.Equal(t, "s3rvice", conn.Password)
	assert.Equal(t, 10, conn.MaxConnections)
	assert.NotNil(t, conn.TLSConfig)
	assert.Nil(t, conn.TLSConfig.RootCAs)

	dir := cfg.LDAPDirectory()
	assert.False(t, dir.DirectBind)
	assert.Equal(t, ldap.PasswordMethodExop, dir.PasswordMethod)
	assert.Equal(t, "cn=staff,ou=groups,dc=example,dc=com", dir.RequiredGroup)

	cfg.LDAP.BindDN = ""
	assert.True(t, cfg.LDAPDirectory().DirectBind, "no service account means direct binds")

	cfg.LDAP.CACertFile = writeConfig(t, "ca.pem", "not a certificate")
	_, err = cfg.LDAPConnection()
	assert.ErrorContains(t, err, "no certificates found")
}

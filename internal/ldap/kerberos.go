package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"

	"github.com/isometry/ldapauth/internal/logging"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// kerberosPrincipal is the service account principal split into name and realm.
type kerberosPrincipal struct {
	username string
	realm    string
}

// performKerberosAuth binds the service account on conn using GSSAPI.
func performKerberosAuth(conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo, logger logging.Logger) error {
	principal, err := resolvePrincipal(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(cfg, principal, logger)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client.
// Priority order: explicit ccache, default ccache, explicit keytab, default keytab, password.
func createGSSAPIClient(cfg *ConnectionConfig, principal kerberosPrincipal, logger logging.Logger) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = defaultKrb5Conf
	}

	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s; "+
			"create it or set directory.kerberos_config", krb5confPath)
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if defaultCCache := getDefaultCCachePath(); fileExists(defaultCCache) {
		logger.Debug("Using default credential cache", map[string]any{"ccache": defaultCCache})
		return gssapi.NewClientFromCCache(defaultCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(principal.username, principal.realm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if defaultKeytab := getDefaultKeytabPath(); fileExists(defaultKeytab) {
		logger.Debug("Using default keytab", map[string]any{"keytab": defaultKeytab})
		return gssapi.NewClientWithKeytab(principal.username, principal.realm, defaultKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.Password != "" {
		return gssapi.NewClientWithPassword(principal.username, principal.realm, cfg.Password, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal returns cfg.KerberosSPN or ldap/<host>.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if serverInfo == nil || serverInfo.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	hostname, _, found := strings.Cut(serverInfo.Host, ":")
	if !found {
		hostname = serverInfo.Host
	}

	return "ldap/" + hostname, nil
}

// resolvePrincipal splits user@REALM usernames and checks a realm is known.
func resolvePrincipal(cfg *ConnectionConfig) (kerberosPrincipal, error) {
	if cfg == nil {
		return kerberosPrincipal{}, fmt.Errorf("configuration cannot be nil")
	}

	p := kerberosPrincipal{username: cfg.Username, realm: cfg.KerberosRealm}
	if user, realm, ok := strings.Cut(cfg.Username, "@"); ok {
		p.username = user
		if p.realm == "" {
			p.realm = realm
		}
	}

	if p.realm == "" {
		return p, fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in username)")
	}

	// A ccache carries its own principal.
	if p.username == "" && cfg.KerberosCCache == "" {
		return p, fmt.Errorf("username (principal) is required for Kerberos authentication")
	}

	return p, nil
}

// getDefaultCCachePath returns the default credential cache location.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// getDefaultKeytabPath returns the default keytab location.
func getDefaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "ldapauth.db")
	configPath = filepath.Join(dir, "ldapauth.yaml")

	content := fmt.Sprintf(`
ldap:
  urls: ["ldap://127.0.0.1:1"]
  base_dn: ou=people,dc=example,dc=com
  use_tls: false
  max_retries: 0
  timeout: 200ms
auth:
  auto_create_user: true
database:
  driver: sqlite
  dsn: %s
`, dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, dbPath
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitRejected, exitCode(fmt.Errorf("no local account for bob: %w", errRejected)))
	assert.Equal(t, exitFatal, exitCode(errors.New("connection refused")))
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"authenticate", "reset-password", "groups", "dn", "attribute", "migrate", "ping"}, names)
}

func TestMigrate(t *testing.T) {
	configPath, dbPath := writeTestConfig(t)

	_, _, err := execute(t, "--config", configPath, "migrate")
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestMetricsTextfile(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	metricsPath := filepath.Join(t.TempDir(), "ldapauth.prom")

	_, _, err := execute(t, "--config", configPath, "--metrics-textfile", metricsPath, "migrate")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestLookupWithoutLocalAccountIsRejected(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	_, _, err := execute(t, "--config", configPath, "migrate")
	require.NoError(t, err)

	_, _, err = execute(t, "--config", configPath, "groups", "nobody@example.com")
	assert.ErrorIs(t, err, errRejected)
}

func TestAuthenticate_UnreachableDirectoryIsFatal(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	_, _, err := execute(t, "--config", configPath, "migrate")
	require.NoError(t, err)

	_, _, err = execute(t, "--config", configPath, "authenticate", "alice@example.com", "--password", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errRejected)
	assert.Equal(t, exitFatal, exitCode(err))
}

func TestInvalidConfigIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ldapauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ldap: {}\n"), 0o600))

	_, _, err := execute(t, "--config", path, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ldap.base_dn is required")
}

func TestPromptPassword(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }

	var buf bytes.Buffer
	pw, err := promptPassword(&buf, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "Password: \n", buf.String())

	pw, err = passwordValue(&buf, "from-flag", true, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", pw)

	readPassword = func(int) ([]byte, error) { return nil, errors.New("not a terminal") }
	_, err = promptPassword(&buf, "Password: ")
	assert.ErrorContains(t, err, "not a terminal")
}

/*
Package ldap is the directory adapter for ldapauth.

Directory implements auth.Directory against an LDAP server or an Active
Directory domain. It is built from two layers:

  - Client: pooled service connections with health checks, SRV discovery of
    domain controllers, retry with exponential backoff, and simple or
    Kerberos (GSSAPI) service binds.
  - Directory: login to DN resolution, user binds, entry reads, password
    writes and group lookups expressed on top of Client.

# Binds

Service operations (DN lookup, group search, password writes) run on pooled
connections bound with the configured service account. Validating a user's
password, and reading the user's own entry, always happens on a dedicated
connection bound as that user so that pooled connections never carry a user
identity. An empty password is refused before any bind is attempted, since
most servers treat it as an unauthenticated bind that succeeds.

# Entries

DecodeEntry turns a search result entry into attribute name to string
values. objectGUID and objectSid are rendered in their canonical text forms
and the entry DN is available as the "dn" attribute.

# Passwords

PasswordMethodExop writes passwords with the RFC 3062 extended operation.
PasswordMethodAD replaces unicodePwd, which Active Directory only accepts
over an encrypted connection.

# Errors

Operation failures are returned as *LDAPError, categorized as connection,
authentication, permission, not_found, validation or server failures.
Directory maps authentication and not_found failures on user binds to
auth.ErrInvalidCredentials and auth.ErrEntryNotFound. Everything else is
returned unchanged.

# Example Usage

	config := ldap.DefaultConfig()
	config.Domain = "example.com"
	config.Username = "cn=svc-ldapauth,ou=services,dc=example,dc=com"
	config.Password = secret

	client, err := ldap.NewClient(ctx, config, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	dir, err := ldap.NewDirectory(client, ldap.DirectoryConfig{
		BaseDN:         "ou=people,dc=example,dc=com",
		LoginAttribute: "mail",
	}, logger)
	if err != nil {
		return err
	}

	ok, err := dir.ValidCredentials(ctx, "alice@example.com", password)
*/
package ldap

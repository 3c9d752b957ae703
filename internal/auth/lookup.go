package auth

import (
	"context"
)

// ValidPassword reports whether the directory accepts password for rec's login.
func (a *Authenticator) ValidPassword(ctx context.Context, rec Record, password string) (bool, error) {
	return a.validator.ValidCredentials(ctx, a.login(rec), password)
}

// Groups returns the DNs of the directory groups rec's login belongs to.
func (a *Authenticator) Groups(ctx context.Context, rec Record) ([]string, error) {
	login := a.login(rec)
	groups, err := a.directory.Groups(ctx, login)
	if err != nil {
		return nil, &DirectoryError{Op: "groups", Login: login, Err: err}
	}
	return groups, nil
}

// DN returns the directory distinguished name of rec's login.
func (a *Authenticator) DN(ctx context.Context, rec Record) (string, error) {
	login := a.login(rec)
	dn, err := a.directory.DN(ctx, login)
	if err != nil {
		return "", &DirectoryError{Op: "dn", Login: login, Err: err}
	}
	return dn, nil
}

// Param returns the values of one directory attribute for login, nil when the
// entry does not carry it.
func (a *Authenticator) Param(ctx context.Context, login, attribute string) ([]string, error) {
	values, err := a.directory.Attribute(ctx, login, attribute)
	if err != nil {
		return nil, &DirectoryError{Op: "fetch attribute", Login: login, Err: err}
	}
	return values, nil
}

func (a *Authenticator) login(rec Record) string {
	return a.store.Fields().FirstValue(rec, a.config.AuthenticationKey)
}

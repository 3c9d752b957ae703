package auth

import (
	"context"
	"errors"
)

// ResetPassword sets a new password on rec, pushing it to the directory when
// the confirmation matches and directory updates are enabled.
//
// The result is that of saving rec locally. A failed directory update is only
// reported to the sink; callers cannot tell it apart from success. The error
// is reserved for storage failures other than validation.
func (a *Authenticator) ResetPassword(ctx context.Context, rec Record, newPassword, confirmation string) (bool, error) {
	fields := a.store.Fields()
	login := fields.FirstValue(rec, a.config.AuthenticationKey)

	rec.SetPassword(newPassword, confirmation)

	switch {
	case newPassword != confirmation || !a.config.UpdatePassword:
		a.metrics.passwordReset(DirectorySkipped)
	default:
		if err := a.directory.UpdatePassword(ctx, login, newPassword); err != nil {
			a.metrics.passwordReset(DirectoryFailed)
			a.sink.Warn("LDAP warning: could not update directory password", map[string]any{
				"login": login,
				"error": err.Error(),
			})
		} else {
			a.metrics.passwordReset(DirectoryUpdated)
		}
	}

	if a.store.Valid(rec) {
		rec.ClearResetPasswordToken()
	}

	if err := a.store.Save(ctx, rec); err != nil {
		var vf ValidationFailure
		if errors.As(err, &vf) {
			return false, nil
		}
		return false, &StoreError{Op: "save", Err: err}
	}
	return true, nil
}

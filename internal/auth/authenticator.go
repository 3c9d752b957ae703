package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PasswordAttribute is the key of the password in Authenticate attributes.
const PasswordAttribute = "password"

// Authenticator resolves a local record for a login and authenticates it
// against the directory.
type Authenticator struct {
	config       *Config
	directory    Directory
	store        Store
	sink         Sink
	metrics      *Metrics
	validator    *Validator
	synchronizer *Synchronizer
}

// NewAuthenticator wires the validator and synchronizer around directory and
// store. sink and metrics may be nil.
func NewAuthenticator(config *Config, directory Directory, store Store, sink Sink, metrics *Metrics) (*Authenticator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if ks, ok := store.(KeyedStore); ok && !ks.IsLookupKey(config.AuthenticationKey) {
		return nil, fmt.Errorf("%w: authentication key %q is not a lookup field", ErrInvalidConfig, config.AuthenticationKey)
	}
	if sink == nil {
		sink = discardSink{}
	}

	return &Authenticator{
		config:       config,
		directory:    directory,
		store:        store,
		sink:         sink,
		metrics:      metrics,
		validator:    NewValidator(config, directory),
		synchronizer: NewSynchronizer(config, directory, store, sink, metrics),
	}, nil
}

// Authenticate returns the authenticated record for attrs, or nil when the
// login is rejected. attrs carries the authentication key and PasswordAttribute.
//
// A record provisioned for an unknown login is persisted only after the
// directory accepts the password. Errors are fatal collaborator failures.
func (a *Authenticator) Authenticate(ctx context.Context, attrs map[string]string) (Record, error) {
	rec, err := a.authenticate(ctx, attrs)
	switch {
	case err != nil:
		a.metrics.authentication(OutcomeError)
	case rec == nil:
		a.metrics.authentication(OutcomeRejected)
	default:
		a.metrics.authentication(OutcomeAuthenticated)
	}
	return rec, err
}

func (a *Authenticator) authenticate(ctx context.Context, attrs map[string]string) (Record, error) {
	key := a.config.AuthenticationKey
	login := attrs[key]
	if strings.TrimSpace(login) == "" {
		return nil, nil
	}
	password := attrs[PasswordAttribute]

	rec, err := a.store.FindBy(ctx, key, login)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, &StoreError{Op: "find", Err: err}
		}
		rec = nil
	}

	provisioned := false
	if rec == nil {
		if !a.config.AutoCreateUser {
			return nil, nil
		}
		if rec, err = a.provision(login, password); err != nil {
			return nil, err
		}
		provisioned = true
	}

	ok, err := a.validator.ValidCredentials(ctx, login, password)
	if err != nil || !ok {
		return nil, err
	}

	if _, err := a.synchronizer.Sync(ctx, login, password, rec); err != nil {
		return nil, err
	}

	if rec.IsNew() {
		if err := a.store.Save(ctx, rec); err != nil {
			var vf ValidationFailure
			if !errors.As(err, &vf) {
				return nil, &StoreError{Op: "save", Err: err}
			}
			a.synchronizer.report(login, Warning{Kind: WarningSaveFailed, Err: err})
		}
	}
	if provisioned && !rec.IsNew() {
		a.metrics.provision()
	}

	return rec, nil
}

// provision builds an unsaved record for login.
func (a *Authenticator) provision(login, password string) (Record, error) {
	rec := a.store.New()

	field, ok := a.store.Fields().Lookup(a.config.AuthenticationKey)
	if !ok {
		return nil, &StoreError{Op: "provision", Err: fmt.Errorf("authentication key %q is not a model attribute", a.config.AuthenticationKey)}
	}
	if err := field.Set(rec, []string{login}); err != nil {
		return nil, &StoreError{Op: "provision", Err: err}
	}
	rec.SetPassword(password, "")

	return rec, nil
}

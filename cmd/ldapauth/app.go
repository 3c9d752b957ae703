package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/isometry/ldapauth/internal/auth"
	"github.com/isometry/ldapauth/internal/config"
	"github.com/isometry/ldapauth/internal/ldap"
	"github.com/isometry/ldapauth/internal/logging"
	"github.com/isometry/ldapauth/internal/store"
)

// app holds the collaborators a command needs. Only what a command asks for
// is opened.
type app struct {
	cfg      *config.Config
	logger   *logging.HCLogger
	registry *prometheus.Registry
	metrics  *auth.Metrics

	client ldap.Client
	dir    *ldap.Directory
	users  *store.UserStore
	auth   *auth.Authenticator

	closers []func() error
}

type needs int

const (
	needDirectory needs = 1 << iota
	needStore
	needAuthenticator = needDirectory | needStore
)

func newApp(ctx context.Context, opts *rootOptions, n needs) (*app, error) {
	cfg, err := config.Load(opts.viper, opts.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logging.New(cfg.LogOptions()),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector())
	a.metrics = auth.NewMetrics(a.registry)

	if n&needDirectory != 0 {
		if err := a.openDirectory(ctx); err != nil {
			_ = a.close()
			return nil, err
		}
	}
	if n&needStore != 0 {
		if err := a.openStore(); err != nil {
			_ = a.close()
			return nil, err
		}
	}
	if n == needAuthenticator {
		a.auth, err = auth.NewAuthenticator(cfg.AuthConfig(), a.dir, a.users, a.logger.Named("auth"), a.metrics)
		if err != nil {
			_ = a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) openDirectory(ctx context.Context) error {
	connCfg, err := a.cfg.LDAPConnection()
	if err != nil {
		return err
	}

	logger := a.logger.Named("ldap")
	a.client, err = ldap.NewClient(ctx, connCfg, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.client.Close)

	a.dir, err = ldap.NewDirectory(a.client, a.cfg.LDAPDirectory(), logger)
	return err
}

func (a *app) openStore() error {
	db, err := store.Open(a.cfg.DatabaseOptions(), a.logger.Named("store"))
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, sqlDB.Close)

	a.users = store.NewUserStore(db, a.logger.Named("store"))
	return nil
}

// findUser looks up the local record for login by the authentication key.
func (a *app) findUser(ctx context.Context, login string) (auth.Record, error) {
	rec, err := a.users.FindBy(ctx, a.cfg.Auth.AuthenticationKey, login)
	if errors.Is(err, auth.ErrRecordNotFound) {
		return nil, fmt.Errorf("no local account for %s: %w", login, errRejected)
	}
	return rec, err
}

// close releases every opened collaborator and writes the metrics textfile.
func (a *app) close() error {
	var result *multierror.Error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("writing metrics: %w", err))
		}
	}

	return result.ErrorOrNil()
}

// withApp runs fn with an app opened for n and closes it afterwards.
func withApp(ctx context.Context, opts *rootOptions, n needs, fn func(*app) error) error {
	a, err := newApp(ctx, opts, n)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			a.logger.Warn("Shutdown failed", map[string]any{"error": cerr.Error()})
		}
	}()
	return fn(a)
}

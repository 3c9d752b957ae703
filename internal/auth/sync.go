package auth

import (
	"context"
	"errors"
)

// Synchronizer copies mapped directory attributes onto local records.
type Synchronizer struct {
	config    *Config
	directory Directory
	store     Store
	sink      Sink
	metrics   *Metrics
}

// NewSynchronizer creates a Synchronizer. sink and metrics may be nil.
func NewSynchronizer(config *Config, directory Directory, store Store, sink Sink, metrics *Metrics) *Synchronizer {
	if sink == nil {
		sink = discardSink{}
	}
	return &Synchronizer{
		config:    config,
		directory: directory,
		store:     store,
		sink:      sink,
		metrics:   metrics,
	}
}

// Sync fetches the directory entry for login, applies the attribute mapping
// to rec in order and saves rec.
//
// Missing attributes on either side and a failed save are reported as
// warnings, never as errors. The returned error is reserved for fatal
// directory failures.
func (s *Synchronizer) Sync(ctx context.Context, login, password string, rec Record) ([]Warning, error) {
	entry, err := s.directory.Entry(ctx, login, password)
	if err != nil {
		if !isRejection(err) {
			return nil, &DirectoryError{Op: "fetch entry", Login: login, Err: err}
		}
		entry = Entry{}
	}

	var warnings []Warning
	warn := func(w Warning) {
		warnings = append(warnings, w)
		s.report(login, w)
	}

	fields := s.store.Fields()
	for _, m := range s.config.AttributeMapping {
		field, known := fields.Lookup(m.Model)

		values, present := entry.Get(m.LDAP)
		if !present {
			warn(Warning{Kind: WarningUnknownLDAPAttribute, Attribute: m.LDAP})
			if !known {
				warn(Warning{Kind: WarningUnknownModelAttribute, Attribute: m.Model})
				continue
			}
			values = nil
		} else if !known {
			warn(Warning{Kind: WarningUnknownModelAttribute, Attribute: m.Model})
			continue
		}

		if err := field.Set(rec, values); err != nil {
			warn(Warning{Kind: WarningSetFailed, Attribute: m.Model, Err: err})
		}
	}

	if err := s.store.Save(ctx, rec); err != nil {
		warn(Warning{Kind: WarningSaveFailed, Err: err})
	}

	return warnings, nil
}

func (s *Synchronizer) report(login string, w Warning) {
	fields := map[string]any{
		"login": login,
		"kind":  string(w.Kind),
	}
	if w.Attribute != "" {
		fields["attribute"] = w.Attribute
	}
	var vf ValidationFailure
	if errors.As(w.Err, &vf) {
		fields["validation_errors"] = vf.ValidationErrors()
	} else if w.Err != nil {
		fields["error"] = w.Err.Error()
	}

	s.sink.Warn(w.Error(), fields)
	s.metrics.syncWarning(w.Kind)
}

type discardSink struct{}

func (discardSink) Warn(string, map[string]any) {}

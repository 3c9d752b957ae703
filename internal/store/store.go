package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/isometry/ldapauth/internal/auth"
	"github.com/isometry/ldapauth/internal/logging"
)

// UserStore persists User records with gorm.
type UserStore struct {
	db       *gorm.DB
	logger   logging.Logger
	validate *validator.Validate
	fields   *auth.Fields
	columns  map[string]string
}

var _ auth.Store = (*UserStore)(nil)

// NewUserStore returns a store backed by db.
func NewUserStore(db *gorm.DB, logger logging.Logger) *UserStore {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return toSnake(fld.Name)
		}
		return name
	})

	fields, columns := newFieldRegistry()
	return &UserStore{
		db:       db,
		logger:   logger,
		validate: v,
		fields:   fields,
		columns:  columns,
	}
}

// AutoMigrate creates or updates the users table.
func (s *UserStore) AutoMigrate(ctx context.Context) error {
	s.logger.Info("Migrating user schema", nil)
	if err := s.db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("migrating users: %w", err)
	}
	return nil
}

// FindBy returns the user whose key field equals value. key must be a
// lookup field such as "email" or "username".
func (s *UserStore) FindBy(ctx context.Context, key, value string) (auth.Record, error) {
	column, ok := s.columns[key]
	if !ok {
		return nil, fmt.Errorf("%q is not a lookup field", key)
	}

	var u User
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s=%s: %w", key, value, auth.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("finding user by %s: %w", key, err)
	}
	return &u, nil
}

// IsLookupKey reports whether FindBy accepts key.
func (s *UserStore) IsLookupKey(key string) bool {
	_, ok := s.columns[key]
	return ok
}

// New returns an empty, unsaved user.
func (s *UserStore) New() auth.Record {
	return &User{}
}

// Save validates rec and inserts or updates it. Invalid records and unique
// key collisions are returned as *ValidationError.
func (s *UserStore) Save(ctx context.Context, rec auth.Record) error {
	u, err := asUser(rec)
	if err != nil {
		return err
	}

	if err := s.check(u); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	if u.IsNew() {
		err = db.Create(u).Error
	} else {
		err = db.Save(u).Error
	}
	if err != nil {
		if isDuplicateKey(err) {
			return duplicateKeyError(err)
		}
		return fmt.Errorf("saving user: %w", err)
	}

	s.logger.Debug("Saved user", map[string]any{"id": u.ID.String(), "email": u.Email})
	return nil
}

// Valid reports whether rec passes validation.
func (s *UserStore) Valid(rec auth.Record) bool {
	u, err := asUser(rec)
	if err != nil {
		return false
	}
	return s.check(u) == nil
}

// Fields returns the registry of mappable user attributes.
func (s *UserStore) Fields() *auth.Fields {
	return s.fields
}

func (s *UserStore) check(u *User) error {
	if err := s.validate.Struct(u); err != nil {
		return newValidationError(err)
	}
	return nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if 'A' <= r && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockDirectory is a mock implementation of Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ValidCredentials(ctx context.Context, login, password string) (bool, error) {
	args := m.Called(ctx, login, password)
	return args.Bool(0), args.Error(1)
}

func (m *MockDirectory) Entry(ctx context.Context, login, password string) (Entry, error) {
	args := m.Called(ctx, login, password)
	if entry := args.Get(0); entry != nil {
		return entry.(Entry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectory) UpdatePassword(ctx context.Context, login, newPassword string) error {
	args := m.Called(ctx, login, newPassword)
	return args.Error(0)
}

func (m *MockDirectory) Attribute(ctx context.Context, login, name string) ([]string, error) {
	args := m.Called(ctx, login, name)
	if values := args.Get(0); values != nil {
		return values.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectory) Groups(ctx context.Context, login string) ([]string, error) {
	args := m.Called(ctx, login)
	if groups := args.Get(0); groups != nil {
		return groups.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDirectory) DN(ctx context.Context, login string) (string, error) {
	args := m.Called(ctx, login)
	return args.String(0), args.Error(1)
}

// testUser is the record type used by memStore.
type testUser struct {
	Email        string
	FullName     string
	Phone        string
	Password     string
	Confirmation string
	ResetToken   string
	persisted    bool
}

func (u *testUser) SetPassword(password, confirmation string) {
	u.Password = password
	u.Confirmation = confirmation
}

func (u *testUser) ClearResetPasswordToken() { u.ResetToken = "" }

func (u *testUser) IsNew() bool { return !u.persisted }

type validationFailure struct{ msgs []string }

func (v *validationFailure) Error() string              { return "validation failed: " + strings.Join(v.msgs, "; ") }
func (v *validationFailure) ValidationErrors() []string { return v.msgs }

// memStore is an in-memory Store keyed by email.
type memStore struct {
	mu      sync.Mutex
	users   map[string]testUser
	saves   int
	finds   int
	saveErr error
	fields  *Fields
}

func newMemStore(users ...*testUser) *memStore {
	s := &memStore{users: make(map[string]testUser)}
	for _, u := range users {
		u.persisted = true
		s.users[u.Email] = *u
	}

	stringField := func(get func(*testUser) *string) Field {
		return Field{
			Get: func(rec Record) []string {
				if v := *get(rec.(*testUser)); v != "" {
					return []string{v}
				}
				return nil
			},
			Set: func(rec Record, values []string) error {
				*get(rec.(*testUser)) = strings.Join(values, ",")
				return nil
			},
		}
	}

	s.fields = NewFields().
		Register("email", stringField(func(u *testUser) *string { return &u.Email })).
		Register("full_name", stringField(func(u *testUser) *string { return &u.FullName })).
		Register("phone", stringField(func(u *testUser) *string { return &u.Phone }))
	return s
}

func (s *memStore) FindBy(_ context.Context, key, value string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++

	if key != "email" {
		return nil, errors.New("unsupported key " + key)
	}
	u, ok := s.users[value]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &u, nil
}

func (s *memStore) IsLookupKey(key string) bool { return key == "email" }

func (s *memStore) New() Record { return &testUser{} }

func (s *memStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	u := rec.(*testUser)
	if u.Email == "" {
		return &validationFailure{msgs: []string{"email is required"}}
	}
	s.saves++
	u.persisted = true
	stored := *u
	stored.Password, stored.Confirmation = "", ""
	s.users[u.Email] = stored
	return nil
}

func (s *memStore) Valid(rec Record) bool { return rec.(*testUser).Email != "" }

func (s *memStore) Fields() *Fields { return s.fields }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) get(email string) (testUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	return u, ok
}

// warning is one call captured by recordingSink.
type warning struct {
	msg    string
	fields map[string]any
}

type recordingSink struct {
	mu       sync.Mutex
	warnings []warning
}

func (s *recordingSink) Warn(msg string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, warning{msg: msg, fields: fields})
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]string, 0, len(s.warnings))
	for _, w := range s.warnings {
		msgs = append(msgs, w.msg)
	}
	return msgs
}

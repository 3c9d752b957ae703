package auth

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T, config *Config, dir Directory, store Store, sink Sink) (*Authenticator, *Metrics) {
	t.Helper()

	metrics := NewMetrics(prometheus.NewRegistry())
	a, err := NewAuthenticator(config, dir, store, sink, metrics)
	require.NoError(t, err)
	return a, metrics
}

func TestNewAuthenticator_InvalidConfig(t *testing.T) {
	_, err := NewAuthenticator(&Config{}, new(MockDirectory), newMemStore(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewAuthenticator(&Config{AuthenticationKey: "full_name"}, new(MockDirectory), newMemStore(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, `"full_name" is not a lookup field`)
}

func TestAuthenticate_MissingAuthenticationKey(t *testing.T) {
	dir := new(MockDirectory)
	store := newMemStore()
	a, metrics := newTestAuthenticator(t, &Config{AuthenticationKey: "email", AutoCreateUser: true}, dir, store, nil)

	for _, attrs := range []map[string]string{
		nil,
		{"password": "correct"},
		{"email": "", "password": "correct"},
		{"email": " \t ", "password": "correct"},
		{"username": "alice", "password": "correct"},
	} {
		rec, err := a.Authenticate(t.Context(), attrs)
		assert.NoError(t, err)
		assert.Nil(t, rec)
	}

	assert.Zero(t, store.finds, "store must not be consulted")
	dir.AssertNotCalled(t, "ValidCredentials", mock.Anything, mock.Anything, mock.Anything)
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.authentications.WithLabelValues(OutcomeRejected)), 0)
}

func TestAuthenticate_ProvisionsOnFirstLogin(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ValidCredentials", mock.Anything, "alice@example.com", "correct").Return(true, nil)
	dir.On("Entry", mock.Anything, "alice@example.com", "correct").Return(Entry{"cn": {"Alice A."}}, nil)

	store := newMemStore()
	a, metrics := newTestAuthenticator(t, &Config{
		AuthenticationKey: "email",
		AutoCreateUser:    true,
		AttributeMapping:  AttributeMapping{{LDAP: "cn", Model: "full_name"}},
	}, dir, store, nil)

	rec, err := a.Authenticate(t.Context(), map[string]string{"email": "alice@example.com", "password": "correct"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	user := rec.(*testUser)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice A.", user.FullName)
	assert.False(t, user.IsNew())

	saved, ok := store.get("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "Alice A.", saved.FullName)
	assert.Empty(t, saved.Password, "password is never persisted")
	assert.Equal(t, 1, store.saves, "new record saved exactly once")
	assert.Equal(t, 1, store.count())

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.provisioned), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.authentications.WithLabelValues(OutcomeAuthenticated)), 0)
}

func TestAuthenticate_WrongPasswordIsNotProvisioned(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ValidCredentials", mock.Anything, "bob@example.com", "wrong").Return(false, nil)

	store := newMemStore()
	a, metrics := newTestAuthenticator(t, &Config{AuthenticationKey: "email", AutoCreateUser: true}, dir, store, nil)

	rec, err := a.Authenticate(t.Context(), map[string]string{"email": "bob@example.com", "password": "wrong"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, ok := store.get("bob@example.com")
	assert.False(t, ok)
	assert.Zero(t, store.saves)
	dir.AssertNotCalled(t, "Entry", mock.Anything, mock.Anything, mock.Anything)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.provisioned), 0)
}

func TestAuthenticate_UnknownLoginWithoutAutoCreate(t *testing.T) {
	dir := new(MockDirectory)
	store := newMemStore()
	a, _ := newTestAuthenticator(t, &Config{AuthenticationKey: "email"}, dir, store, nil)

	rec, err := a.Authenticate(t.Context(), map[string]string{"email": "carol@example.com", "password": "correct"})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, store.finds)
	dir.AssertNotCalled(t, "ValidCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticate_ExistingRecordIsIdempotent(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ValidCredentials", mock.Anything, "alice@example.com", "correct").Return(true, nil)
	dir.On("Entry", mock.Anything, "alice@example.com", "correct").Return(Entry{"cn": {"Alice A."}}, nil)

	store := newMemStore()
	a, _ := newTestAuthenticator(t, &Config{
		AuthenticationKey: "email",
		AutoCreateUser:    true,
		AttributeMapping:  AttributeMapping{{LDAP: "cn", Model: "full_name"}},
	}, dir, store, nil)

	attrs := map[string]string{"email": "alice@example.com", "password": "correct"}

	first, err := a.Authenticate(t.Context(), attrs)
	require.NoError(t, err)
	second, err := a.Authenticate(t.Context(), attrs)
	require.NoError(t, err)

	assert.Equal(t, first.(*testUser).Email, second.(*testUser).Email)
	assert.Equal(t, 1, store.count(), "no duplicate record")
	assert.Equal(t, 2, store.saves, "one save per sync")
}

func TestAuthenticate_MissingAttributeStillAuthenticates(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("ValidCredentials", mock.Anything, "alice@example.com", "correct").Return(true, nil)
	dir.On("Entry", mock.Anything, "alice@example.com", "correct").Return(Entry{"cn": {"Alice A."}}, nil)

	store := newMemStore(&testUser{Email: "alice@example.com", Phone: "+1 555 0100"})
	sink := &recordingSink{}
	a, _ := newTestAuthenticator(t, &Config{
		AuthenticationKey: "email",
		AttributeMapping:  AttributeMapping{{LDAP: "telephoneNumber", Model: "phone"}},
	}, dir, store, sink)

	rec, err := a.Authenticate(t.Context(), map[string]string{"email": "alice@example.com", "password": "correct"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Empty(t, rec.(*testUser).Phone)
	assert.Equal(t, []string{"LDAP warning: unknown LDAP attribute telephoneNumber"}, sink.messages())
}

func TestAuthenticate_FatalErrors(t *testing.T) {
	t.Run("directory outage", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("ValidCredentials", mock.Anything, "alice@example.com", "correct").Return(false, errors.New("connection refused"))

		store := newMemStore(&testUser{Email: "alice@example.com"})
		a, metrics := newTestAuthenticator(t, &Config{AuthenticationKey: "email"}, dir, store, nil)

		rec, err := a.Authenticate(t.Context(), map[string]string{"email": "alice@example.com", "password": "correct"})
		assert.Nil(t, rec)
		var dirErr *DirectoryError
		require.ErrorAs(t, err, &dirErr)
		assert.Equal(t, "alice@example.com", dirErr.Login)
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.authentications.WithLabelValues(OutcomeError)), 0)
	})

	t.Run("store failure on new record", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("ValidCredentials", mock.Anything, "alice@example.com", "correct").Return(true, nil)
		dir.On("Entry", mock.Anything, "alice@example.com", "correct").Return(Entry{}, nil)

		store := newMemStore()
		store.saveErr = errors.New("database is locked")
		a, _ := newTestAuthenticator(t, &Config{AuthenticationKey: "email", AutoCreateUser: true}, dir, store, nil)

		rec, err := a.Authenticate(t.Context(), map[string]string{"email": "alice@example.com", "password": "correct"})
		assert.Nil(t, rec)
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "save", storeErr.Op)
	})

	t.Run("validation failure on new record is a warning", func(t *testing.T) {
		dir := new(MockDirectory)
		dir.On("ValidCredentials", mock.Anything, "alice@example.com", "correct").Return(true, nil)
		dir.On("Entry", mock.Anything, "alice@example.com", "correct").Return(Entry{}, nil)

		store := newMemStore()
		store.saveErr = &validationFailure{msgs: []string{"username is required"}}
		sink := &recordingSink{}
		a, metrics := newTestAuthenticator(t, &Config{AuthenticationKey: "email", AutoCreateUser: true}, dir, store, sink)

		rec, err := a.Authenticate(t.Context(), map[string]string{"email": "alice@example.com", "password": "correct"})
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.IsNew())
		assert.Len(t, sink.warnings, 2)
		assert.Equal(t, []string{"username is required"}, sink.warnings[0].fields["validation_errors"])
		assert.InDelta(t, 0, testutil.ToFloat64(metrics.provisioned), 0)
	})

	t.Run("authentication key not a model field", func(t *testing.T) {
		dir := new(MockDirectory)
		// Without IsLookupKey the bad key is only found on first use.
		store := struct{ Store }{newMemStore()}
		a, _ := newTestAuthenticator(t, &Config{AuthenticationKey: "login", AutoCreateUser: true}, dir, store, nil)

		_, err := a.Authenticate(t.Context(), map[string]string{"login": "alice", "password": "correct"})
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
	})
}

package account

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	rcerr "relaychat/internal/errors"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	s.cost = bcrypt.MinCost
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterAndValidate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "alice", "hunter2"))
	require.NoError(t, s.Validate(ctx, "alice", "hunter2"))
	require.NoError(t, s.Validate(ctx, "  alice ", "hunter2"))

	ok, err := s.Exists(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegister_Duplicate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "alice", "one"))
	require.ErrorIs(t, s.Register(ctx, "alice", "two"), rcerr.ErrUsernameTaken)
	require.NoError(t, s.Validate(ctx, "alice", "one"), "original password must survive")
}

func TestValidate_Failures(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", "hunter2"))

	require.ErrorIs(t, s.Validate(ctx, "alice", "wrong"), rcerr.ErrInvalidCredential)
	require.ErrorIs(t, s.Validate(ctx, "bob", "hunter2"), rcerr.ErrInvalidCredential)

	ok, err := s.Exists(ctx, "bob")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPasswordsAreHashed(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "alice", "hunter2"))

	var stored []byte
	require.NoError(t, s.db.QueryRow(`SELECT password FROM users WHERE username = 'alice'`).Scan(&stored))
	require.NotContains(t, string(stored), "hunter2")
	require.NoError(t, bcrypt.CompareHashAndPassword(stored, []byte("hunter2")))
}

func TestRegister_InvalidInput(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, tc := range []struct{ user, pass string }{
		{"", "x"},
		{"   ", "x"},
		{"alice", ""},
		{"a:b", "x"},
		{"line\nbreak", "x"},
		{strings.Repeat("u", MaxUsernameLen+1), "x"},
		{"alice", strings.Repeat("p", 73)},
	} {
		err := s.Register(ctx, tc.user, tc.pass)
		var ce *rcerr.ConfigError
		require.True(t, errors.As(err, &ce), "user=%q: got %v", tc.user, err)
	}
}

func TestReopenKeepsUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	s.cost = bcrypt.MinCost
	require.NoError(t, s.Register(ctx, "alice", "pw"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Validate(ctx, "alice", "pw"))
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "users.db"))
	require.Error(t, err)
}

func TestErrorClassifiers(t *testing.T) {
	require.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	require.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	require.False(t, isBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	require.False(t, isBusy(errors.New("other")))

	require.True(t, isUnique(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	require.False(t, isUnique(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}))
	require.False(t, isUnique(nil))
}

// Package account registers and validates chat users against a local
// sqlite database.  It runs before a session exists and only produces
// the username the session is created for.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	rcerr "relaychat/internal/errors"
	"relaychat/internal/retry"
)

// MaxUsernameLen bounds stored usernames.
const MaxUsernameLen = 64

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT    NOT NULL UNIQUE,
	password   BLOB    NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);`

// Store is a users table with bcrypt password hashes.
type Store struct {
	db      *sql.DB
	backoff *retry.Backoff
	cost    int
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=1000")
	if err != nil {
		return nil, fmt.Errorf("open account db: %w", err)
	}
	// A single writer connection keeps sqlite from contending with itself.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, backoff: retry.StoreBackoff(isBusy), cost: bcrypt.DefaultCost}
	if err := s.exec(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init account schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Register creates a user.  It fails with errors.ErrUsernameTaken when
// the name exists.
func (s *Store) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if err := validate(username, password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.exec(ctx, `INSERT INTO users (username, password) VALUES (?, ?)`, username, hash)
	if isUnique(err) {
		return rcerr.ErrUsernameTaken
	}
	return err
}

// Validate checks a username/password pair.  Unknown users and wrong
// passwords both fail with errors.ErrInvalidCredential.
func (s *Store) Validate(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)

	var hash []byte
	err := s.backoff.Do(ctx, func(int) error {
		row := s.db.QueryRowContext(ctx, `SELECT password FROM users WHERE username = ?`, username)
		return row.Scan(&hash)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return rcerr.ErrInvalidCredential
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return rcerr.ErrInvalidCredential
	}
	return nil
}

// Exists reports whether username is registered.
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.backoff.Do(ctx, func(int) error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE username = ?`, strings.TrimSpace(username)).Scan(&n)
	})
	return n > 0, err
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	return s.backoff.Do(ctx, func(int) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func validate(username, password string) error {
	switch {
	case username == "":
		return &rcerr.ConfigError{Field: "user", Message: "username is required"}
	case len(username) > MaxUsernameLen:
		return &rcerr.ConfigError{Field: "user", Value: username,
			Message: fmt.Sprintf("longer than %d characters", MaxUsernameLen)}
	case strings.ContainsAny(username, ":\r\n"):
		return &rcerr.ConfigError{Field: "user", Value: username,
			Message: "must not contain ':' or line breaks"}
	case password == "":
		return &rcerr.ConfigError{Field: "password", Message: "password is required"}
	case len(password) > 72:
		return &rcerr.ConfigError{Field: "password", Message: "longer than 72 bytes"}
	}
	return nil
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

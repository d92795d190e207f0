package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Setting keys.
const (
	KeyAccessToken   = "nestAccesstoken"
	KeyLegacyAccount = "oauth2Account"
)

// Store is a SQLite-backed key/value store.
//
// Thread Safety:
//   - Safe for concurrent use; SQLite serialises writers.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// Unset removes key. Removing an absent key is not an error.
func (s *Store) Unset(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing setting %s: %w", key, err)
	}
	return nil
}

// Credential returns the persisted access token, or "" when none is stored.
func (s *Store) Credential(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, KeyAccessToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetCredential persists the access token. An empty token clears it.
func (s *Store) SetCredential(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return s.ClearCredential(ctx)
	}
	return s.Set(ctx, KeyAccessToken, token)
}

// ClearCredential removes the persisted access token.
func (s *Store) ClearCredential(ctx context.Context) error {
	return s.Unset(ctx, KeyAccessToken)
}

// legacyAccount is the shape of the old account blob.
type legacyAccount struct {
	AccessToken string `json:"accessToken"`
}

// MigrateLegacyCredential moves an access token out of the legacy account
// blob into KeyAccessToken and removes the blob. An unreadable blob is
// removed without migrating anything.
//
// Returns:
//   - bool: true when a credential was migrated
//   - error: on storage failures
func (s *Store) MigrateLegacyCredential(ctx context.Context) (bool, error) {
	raw, err := s.Get(ctx, KeyLegacyAccount)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var acct legacyAccount
	migrated := false
	if json.Unmarshal([]byte(raw), &acct) == nil && acct.AccessToken != "" {
		if err := s.Set(ctx, KeyAccessToken, acct.AccessToken); err != nil {
			return false, err
		}
		migrated = true
	}

	if err := s.Unset(ctx, KeyLegacyAccount); err != nil {
		return migrated, err
	}
	return migrated, nil
}

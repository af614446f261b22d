package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
)

// TokenStore persists cloud sessions between runs.
type TokenStore interface {
	// Load returns the stored session, or nil if there is none.
	Load(ctx context.Context, account, region string) (*ezviz.Token, error)
	Save(ctx context.Context, account, region string, token *ezviz.Token) error
	Delete(ctx context.Context, account, region string) error
}

// SQLiteTokenStore implements TokenStore on the cloud_sessions table.
type SQLiteTokenStore struct {
	db *sql.DB
}

// NewSQLiteTokenStore creates a token store.
//
// Parameters:
//   - db: Open, migrated SQLite connection
//
// Returns:
//   - *SQLiteTokenStore: Store ready for use
func NewSQLiteTokenStore(db *sql.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db}
}

// Load returns the session stored for account and region.
func (s *SQLiteTokenStore) Load(ctx context.Context, account, region string) (*ezviz.Token, error) {
	var tok ezviz.Token
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, rf_session_id, username, api_url
		 FROM cloud_sessions
		 WHERE account = ? AND region = ?`,
		account,
		region,
	).Scan(&tok.SessionID, &tok.RefreshSessionID, &tok.Username, &tok.APIURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cloud session: %w", err)
	}
	return &tok, nil
}

// Save stores token, replacing any previous session for account and region.
func (s *SQLiteTokenStore) Save(ctx context.Context, account, region string, token *ezviz.Token) error {
	if !token.Valid() {
		return errors.New("session: cannot store an empty token")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cloud_sessions (account, region, session_id, rf_session_id, username, api_url, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account, region) DO UPDATE SET
		     session_id = excluded.session_id,
		     rf_session_id = excluded.rf_session_id,
		     username = excluded.username,
		     api_url = excluded.api_url,
		     updated_at = excluded.updated_at`,
		account,
		region,
		token.SessionID,
		token.RefreshSessionID,
		token.Username,
		token.APIURL,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving cloud session: %w", err)
	}
	return nil
}

// Delete removes the session for account and region.
func (s *SQLiteTokenStore) Delete(ctx context.Context, account, region string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cloud_sessions WHERE account = ? AND region = ?",
		account,
		region,
	); err != nil {
		return fmt.Errorf("deleting cloud session: %w", err)
	}
	return nil
}

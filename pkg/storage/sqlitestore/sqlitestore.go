// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore provides a SQLite-backed model implementation using a
// pure-Go driver, so grants survive restarts without cgo or an external
// database. The schema is managed with embedded goose migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/storage"
)

// Store implements the full model capability set against SQLite.
type Store struct {
	db *sql.DB
}

// New opens the database at the given DSN, applies pending migrations and
// returns the store. A plain file path works as a DSN; tests can pass
// "file:name?mode=memory&cache=shared" for an in-memory database.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY under concurrent writes and
	// keeps in-memory databases on one backing store.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Cleanup deletes expired codes and tokens. Unlike Redis there is no TTL
// eviction, so long-running deployments should call this periodically.
func (s *Store) Cleanup(ctx context.Context) error {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at < ?`, now); err != nil {
		return fmt.Errorf("deleting expired codes: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE access_token_expires_at > 0 AND access_token_expires_at < ?`, now); err != nil {
		return fmt.Errorf("deleting expired tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at > 0 AND expires_at < ?`, now); err != nil {
		return fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	return nil
}

// unixOrZero converts a timestamp for storage. The zero time is stored as 0.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// timeOrZero is the inverse of unixOrZero.
func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// -----------------------
// Seeding
// -----------------------

// AddClient registers a client. An empty secret registers a public client.
func (s *Store) AddClient(ctx context.Context, client *model.Client, secret string) error {
	var hash []byte
	if secret != "" {
		var err error
		hash, err = storage.HashSecret(secret)
		if err != nil {
			return err
		}
	}
	grantsJSON, err := json.Marshal(client.Grants)
	if err != nil {
		return fmt.Errorf("encoding grants: %w", err)
	}
	urisJSON, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect URIs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, secret_hash, grants, redirect_uris, access_token_lifetime, refresh_token_lifetime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			secret_hash = excluded.secret_hash,
			grants = excluded.grants,
			redirect_uris = excluded.redirect_uris,
			access_token_lifetime = excluded.access_token_lifetime,
			refresh_token_lifetime = excluded.refresh_token_lifetime`,
		client.ID, hash, string(grantsJSON), string(urisJSON),
		int64(client.AccessTokenLifetime), int64(client.RefreshTokenLifetime),
	)
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

// AddUser registers a resource owner with a password. A missing user ID is
// assigned a fresh UUID.
func (s *Store) AddUser(ctx context.Context, user *storage.User, password string) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	hash, err := storage.HashSecret(password)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash`,
		user.ID, user.Username, hash,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// LinkClientUser associates a user with a client for the client_credentials
// grant.
func (s *Store) LinkClientUser(ctx context.Context, clientID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_users (client_id, user_id) VALUES (?, ?)
		ON CONFLICT (client_id) DO UPDATE SET user_id = excluded.user_id`,
		clientID, userID,
	)
	if err != nil {
		return fmt.Errorf("linking client user: %w", err)
	}
	return nil
}

// -----------------------
// model.ClientStore
// -----------------------

// GetClient looks a client up by ID. With a non-empty secret the bcrypt hash
// must match.
func (s *Store) GetClient(ctx context.Context, id, secret string) (*model.Client, error) {
	var (
		hash                 []byte
		grantsJSON, urisJSON string
		accessLT, refreshLT  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT secret_hash, grants, redirect_uris, access_token_lifetime, refresh_token_lifetime
		FROM clients WHERE id = ?`, id,
	).Scan(&hash, &grantsJSON, &urisJSON, &accessLT, &refreshLT)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	if secret != "" && !storage.CheckSecret(hash, secret) {
		return nil, nil
	}

	client := &model.Client{
		ID:                   id,
		AccessTokenLifetime:  time.Duration(accessLT),
		RefreshTokenLifetime: time.Duration(refreshLT),
	}
	if err := json.Unmarshal([]byte(grantsJSON), &client.Grants); err != nil {
		return nil, fmt.Errorf("decoding grants: %w", err)
	}
	if err := json.Unmarshal([]byte(urisJSON), &client.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect URIs: %w", err)
	}
	return client, nil
}

// -----------------------
// model.UserStore / model.ClientUserStore
// -----------------------

// GetUser authenticates a resource owner by username and password.
func (s *Store) GetUser(ctx context.Context, username, password string) (model.User, error) {
	var (
		user storage.User
		hash []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username,
	).Scan(&user.ID, &user.Username, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !storage.CheckSecret(hash, password) {
		return nil, nil
	}
	return &user, nil
}

// GetUserFromClient returns the user linked to a client, if any.
func (s *Store) GetUserFromClient(ctx context.Context, client *model.Client) (model.User, error) {
	var user storage.User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username
		FROM client_users cu JOIN users u ON u.id = cu.user_id
		WHERE cu.client_id = ?`, client.ID,
	).Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up client user: %w", err)
	}
	return &user, nil
}

// getUserByID resolves a stored user reference.
func (s *Store) getUserByID(ctx context.Context, id string) (*storage.User, error) {
	var user storage.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return &user, nil
}

// userID narrows the opaque user to the identity type this backend stores.
func userID(user model.User) (string, error) {
	switch u := user.(type) {
	case *storage.User:
		return u.ID, nil
	case storage.User:
		return u.ID, nil
	default:
		return "", fmt.Errorf("sqlite storage requires a storage.User, got %T", user)
	}
}

// -----------------------
// model.TokenSaver / model.AccessTokenStore / model.RefreshTokenStore
// -----------------------

// SaveToken persists the token and, when one was issued, its refresh token
// in a single transaction.
func (s *Store) SaveToken(ctx context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	uid, err := userID(user)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tokens (access_token, access_token_expires_at, refresh_token,
			refresh_token_expires_at, scope, client_id, user_id, authorization_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.AccessToken, unixOrZero(token.AccessTokenExpiresAt),
		token.RefreshToken, unixOrZero(token.RefreshTokenExpiresAt),
		token.Scope, client.ID, uid, token.AuthorizationCode,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting token: %w", err)
	}

	if token.RefreshToken != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refresh_tokens (token, expires_at, scope, client_id, user_id)
			VALUES (?, ?, ?, ?, ?)`,
			token.RefreshToken, unixOrZero(token.RefreshTokenExpiresAt),
			token.Scope, client.ID, uid,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting refresh token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return token, nil
}

// GetAccessToken looks up a token by its access token value.
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (*model.Token, error) {
	var (
		token              model.Token
		accessExp, refExp  int64
		clientID, ownerUID string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, access_token_expires_at, refresh_token,
			refresh_token_expires_at, scope, client_id, user_id, authorization_code
		FROM tokens WHERE access_token = ?`, accessToken,
	).Scan(&token.AccessToken, &accessExp, &token.RefreshToken, &refExp,
		&token.Scope, &clientID, &ownerUID, &token.AuthorizationCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	token.AccessTokenExpiresAt = timeOrZero(accessExp)
	token.RefreshTokenExpiresAt = timeOrZero(refExp)

	if token.Client, err = s.GetClient(ctx, clientID, ""); err != nil {
		return nil, err
	}
	owner, err := s.getUserByID(ctx, ownerUID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		token.User = owner
	}
	return &token, nil
}

// GetRefreshToken looks up a refresh token by value.
func (s *Store) GetRefreshToken(ctx context.Context, refreshToken string) (*model.RefreshToken, error) {
	var (
		token              model.RefreshToken
		exp                int64
		clientID, ownerUID string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, expires_at, scope, client_id, user_id
		FROM refresh_tokens WHERE token = ?`, refreshToken,
	).Scan(&token.Token, &exp, &token.Scope, &clientID, &ownerUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	token.ExpiresAt = timeOrZero(exp)

	if token.Client, err = s.GetClient(ctx, clientID, ""); err != nil {
		return nil, err
	}
	owner, err := s.getUserByID(ctx, ownerUID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		token.User = owner
	}
	return &token, nil
}

// RevokeToken invalidates a refresh token. The affected row count
// distinguishes a revocation from a token that was already gone.
func (s *Store) RevokeToken(ctx context.Context, token *model.RefreshToken) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token.Token)
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// -----------------------
// model.AuthorizationCodeStore
// -----------------------

// SaveAuthorizationCode persists the code.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error) {
	uid, err := userID(user)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (code, expires_at, redirect_uri, scope, client_id, user_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		code.Code, code.ExpiresAt.Unix(), code.RedirectURI, code.Scope, client.ID, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting authorization code: %w", err)
	}
	return code, nil
}

// GetAuthorizationCode looks up a code by value.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*model.AuthorizationCode, error) {
	var (
		stored             model.AuthorizationCode
		exp                int64
		clientID, ownerUID string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT code, expires_at, redirect_uri, scope, client_id, user_id
		FROM authorization_codes WHERE code = ?`, code,
	).Scan(&stored.Code, &exp, &stored.RedirectURI, &stored.Scope, &clientID, &ownerUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up authorization code: %w", err)
	}

	stored.ExpiresAt = time.Unix(exp, 0)

	if stored.Client, err = s.GetClient(ctx, clientID, ""); err != nil {
		return nil, err
	}
	owner, err := s.getUserByID(ctx, ownerUID)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		stored.User = owner
	}
	return &stored, nil
}

// RevokeAuthorizationCode invalidates a code. The affected row count makes
// concurrent exchanges of the same code see exactly one successful
// revocation.
func (s *Store) RevokeAuthorizationCode(ctx context.Context, code *model.AuthorizationCode) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE code = ?`, code.Code)
	if err != nil {
		return false, fmt.Errorf("revoking authorization code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// -----------------------
// model.ScopeVerifier
// -----------------------

// VerifyScope reports whether the token's granted scope covers the required
// scope.
func (s *Store) VerifyScope(_ context.Context, token *model.Token, scope string) (bool, error) {
	return storage.ScopeAllows(token.Scope, scope), nil
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// Compile-time interface compliance checks
var (
	_ model.ClientStore            = (*Store)(nil)
	_ model.AccessTokenStore       = (*Store)(nil)
	_ model.TokenSaver             = (*Store)(nil)
	_ model.AuthorizationCodeStore = (*Store)(nil)
	_ model.UserStore              = (*Store)(nil)
	_ model.ClientUserStore        = (*Store)(nil)
	_ model.RefreshTokenStore      = (*Store)(nil)
	_ model.ScopeVerifier          = (*Store)(nil)
)

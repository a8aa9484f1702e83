// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package redisstore provides a Redis-backed model implementation. Codes and
// tokens are stored as JSON under a configurable key prefix with TTLs matching
// their expiry, so Redis evicts expired grants without a cleanup job. Multiple
// server instances sharing one Redis see the same grants, enabling horizontal
// scaling.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/storage"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Key type segments. Keys are "<prefix><type>:<value>".
const (
	keyTypeClient     = "client"
	keyTypeUser       = "user"
	keyTypeUsername   = "username"
	keyTypeClientUser = "clientuser"
	keyTypeCode       = "code"
	keyTypeToken      = "token"
	keyTypeRefresh    = "refresh"
)

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address, host:port.
	Addr string

	// Username and Password authenticate against Redis ACLs. Both optional.
	Username string
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces all keys, e.g. "oauth2:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store implements the full model capability set against Redis.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewWithClient creates a Store with a pre-configured client. This is useful
// for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(keyType, value string) string {
	return s.keyPrefix + keyType + ":" + value
}

// -----------------------
// Serialized records
// -----------------------

// storedClient is the serializable client record. The secret is a bcrypt
// hash; public clients have none.
type storedClient struct {
	ID                   string        `json:"id"`
	SecretHash           []byte        `json:"secret_hash,omitempty"`
	Grants               []string      `json:"grants"`
	RedirectURIs         []string      `json:"redirect_uris,omitempty"`
	AccessTokenLifetime  time.Duration `json:"access_token_lifetime,omitempty"`
	RefreshTokenLifetime time.Duration `json:"refresh_token_lifetime,omitempty"`
}

func (c *storedClient) toModel() *model.Client {
	return &model.Client{
		ID:                   c.ID,
		Grants:               c.Grants,
		RedirectURIs:         c.RedirectURIs,
		AccessTokenLifetime:  c.AccessTokenLifetime,
		RefreshTokenLifetime: c.RefreshTokenLifetime,
	}
}

// storedUser is the serializable user record.
type storedUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}

// storedCode is the serializable authorization code record.
type storedCode struct {
	Code        string        `json:"code"`
	ExpiresAt   time.Time     `json:"expires_at"`
	RedirectURI string        `json:"redirect_uri,omitempty"`
	Scope       string        `json:"scope,omitempty"`
	ClientID    string        `json:"client_id"`
	User        *storage.User `json:"user"`
}

// storedToken is the serializable token record.
type storedToken struct {
	AccessToken           string        `json:"access_token"`
	AccessTokenExpiresAt  time.Time     `json:"access_token_expires_at"`
	RefreshToken          string        `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt time.Time     `json:"refresh_token_expires_at,omitempty"`
	Scope                 string        `json:"scope,omitempty"`
	ClientID              string        `json:"client_id"`
	User                  *storage.User `json:"user"`
	AuthorizationCode     string        `json:"authorization_code,omitempty"`
}

// storedRefreshToken is the serializable refresh token record.
type storedRefreshToken struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
	Scope     string        `json:"scope,omitempty"`
	ClientID  string        `json:"client_id"`
	User      *storage.User `json:"user"`
}

// asUser narrows the opaque user to the identity type this backend stores.
func asUser(user model.User) (*storage.User, error) {
	switch u := user.(type) {
	case *storage.User:
		return u, nil
	case storage.User:
		return &u, nil
	default:
		return nil, fmt.Errorf("redis storage requires a storage.User, got %T", user)
	}
}

// ttlFor converts an absolute expiry into a Redis TTL. Zero expiry means no
// TTL; an already-passed expiry gets a minimal TTL so Redis drops it.
func ttlFor(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return time.Millisecond
	}
	return ttl
}

func (s *Store) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// getJSON fetches and decodes a record. Returns (false, nil) when the key
// does not exist.
func (s *Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return true, nil
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
	stored := storedClient{
		ID:                   client.ID,
		SecretHash:           hash,
		Grants:               client.Grants,
		RedirectURIs:         client.RedirectURIs,
		AccessTokenLifetime:  client.AccessTokenLifetime,
		RefreshTokenLifetime: client.RefreshTokenLifetime,
	}
	return s.setJSON(ctx, s.key(keyTypeClient, client.ID), &stored, 0)
}

// AddUser registers a resource owner with a password.
func (s *Store) AddUser(ctx context.Context, user *storage.User, password string) error {
	hash, err := storage.HashSecret(password)
	if err != nil {
		return err
	}
	stored := storedUser{ID: user.ID, Username: user.Username, PasswordHash: hash}
	if err := s.setJSON(ctx, s.key(keyTypeUser, user.ID), &stored, 0); err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(keyTypeUsername, user.Username), user.ID, 0).Err()
}

// LinkClientUser associates a user with a client for the client_credentials
// grant.
func (s *Store) LinkClientUser(ctx context.Context, clientID, userID string) error {
	return s.client.Set(ctx, s.key(keyTypeClientUser, clientID), userID, 0).Err()
}

// -----------------------
// model.ClientStore
// -----------------------

// GetClient looks a client up by ID. With a non-empty secret the bcrypt hash
// must match.
func (s *Store) GetClient(ctx context.Context, id, secret string) (*model.Client, error) {
	var stored storedClient
	found, err := s.getJSON(ctx, s.key(keyTypeClient, id), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if !found {
		return nil, nil
	}
	if secret != "" && !storage.CheckSecret(stored.SecretHash, secret) {
		return nil, nil
	}
	return stored.toModel(), nil
}

// -----------------------
// model.UserStore / model.ClientUserStore
// -----------------------

// GetUser authenticates a resource owner by username and password.
func (s *Store) GetUser(ctx context.Context, username, password string) (model.User, error) {
	id, err := s.client.Get(ctx, s.key(keyTypeUsername, username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}
	return s.authenticateUser(ctx, id, password)
}

func (s *Store) authenticateUser(ctx context.Context, id, password string) (model.User, error) {
	var stored storedUser
	found, err := s.getJSON(ctx, s.key(keyTypeUser, id), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found || !storage.CheckSecret(stored.PasswordHash, password) {
		return nil, nil
	}
	return &storage.User{ID: stored.ID, Username: stored.Username}, nil
}

// GetUserFromClient returns the user linked to a client, if any.
func (s *Store) GetUserFromClient(ctx context.Context, client *model.Client) (model.User, error) {
	id, err := s.client.Get(ctx, s.key(keyTypeClientUser, client.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve client user: %w", err)
	}
	var stored storedUser
	found, err := s.getJSON(ctx, s.key(keyTypeUser, id), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &storage.User{ID: stored.ID, Username: stored.Username}, nil
}

// -----------------------
// model.TokenSaver / model.AccessTokenStore / model.RefreshTokenStore
// -----------------------

// SaveToken persists the token under its access token value and indexes the
// refresh token separately when one was issued.
func (s *Store) SaveToken(ctx context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	u, err := asUser(user)
	if err != nil {
		return nil, err
	}

	stored := storedToken{
		AccessToken:           token.AccessToken,
		AccessTokenExpiresAt:  token.AccessTokenExpiresAt,
		RefreshToken:          token.RefreshToken,
		RefreshTokenExpiresAt: token.RefreshTokenExpiresAt,
		Scope:                 token.Scope,
		ClientID:              client.ID,
		User:                  u,
		AuthorizationCode:     token.AuthorizationCode,
	}
	key := s.key(keyTypeToken, token.AccessToken)
	if err := s.setJSON(ctx, key, &stored, ttlFor(token.AccessTokenExpiresAt)); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	if token.RefreshToken != "" {
		refresh := storedRefreshToken{
			Token:     token.RefreshToken,
			ExpiresAt: token.RefreshTokenExpiresAt,
			Scope:     token.Scope,
			ClientID:  client.ID,
			User:      u,
		}
		key := s.key(keyTypeRefresh, token.RefreshToken)
		if err := s.setJSON(ctx, key, &refresh, ttlFor(token.RefreshTokenExpiresAt)); err != nil {
			return nil, fmt.Errorf("failed to save refresh token: %w", err)
		}
	}
	return token, nil
}

// GetAccessToken looks up a token by its access token value.
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (*model.Token, error) {
	var stored storedToken
	found, err := s.getJSON(ctx, s.key(keyTypeToken, accessToken), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if !found {
		return nil, nil
	}

	client, err := s.GetClient(ctx, stored.ClientID, "")
	if err != nil {
		return nil, err
	}

	return &model.Token{
		AccessToken:           stored.AccessToken,
		AccessTokenExpiresAt:  stored.AccessTokenExpiresAt,
		RefreshToken:          stored.RefreshToken,
		RefreshTokenExpiresAt: stored.RefreshTokenExpiresAt,
		Scope:                 stored.Scope,
		Client:                client,
		User:                  stored.User,
		AuthorizationCode:     stored.AuthorizationCode,
	}, nil
}

// GetRefreshToken looks up a refresh token by value.
func (s *Store) GetRefreshToken(ctx context.Context, refreshToken string) (*model.RefreshToken, error) {
	var stored storedRefreshToken
	found, err := s.getJSON(ctx, s.key(keyTypeRefresh, refreshToken), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if !found {
		return nil, nil
	}

	client, err := s.GetClient(ctx, stored.ClientID, "")
	if err != nil {
		return nil, err
	}

	return &model.RefreshToken{
		Token:     stored.Token,
		ExpiresAt: stored.ExpiresAt,
		Scope:     stored.Scope,
		Client:    client,
		User:      stored.User,
	}, nil
}

// RevokeToken invalidates a refresh token. The DEL count distinguishes a
// revocation from a token that was already gone.
func (s *Store) RevokeToken(ctx context.Context, token *model.RefreshToken) (bool, error) {
	n, err := s.client.Del(ctx, s.key(keyTypeRefresh, token.Token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return n > 0, nil
}

// -----------------------
// model.AuthorizationCodeStore
// -----------------------

// SaveAuthorizationCode persists the code with a TTL matching its expiry.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error) {
	u, err := asUser(user)
	if err != nil {
		return nil, err
	}

	stored := storedCode{
		Code:        code.Code,
		ExpiresAt:   code.ExpiresAt,
		RedirectURI: code.RedirectURI,
		Scope:       code.Scope,
		ClientID:    client.ID,
		User:        u,
	}
	key := s.key(keyTypeCode, code.Code)
	if err := s.setJSON(ctx, key, &stored, ttlFor(code.ExpiresAt)); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}
	return code, nil
}

// GetAuthorizationCode looks up a code by value.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*model.AuthorizationCode, error) {
	var stored storedCode
	found, err := s.getJSON(ctx, s.key(keyTypeCode, code), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	if !found {
		return nil, nil
	}

	client, err := s.GetClient(ctx, stored.ClientID, "")
	if err != nil {
		return nil, err
	}

	return &model.AuthorizationCode{
		Code:        stored.Code,
		ExpiresAt:   stored.ExpiresAt,
		RedirectURI: stored.RedirectURI,
		Scope:       stored.Scope,
		Client:      client,
		User:        stored.User,
	}, nil
}

// RevokeAuthorizationCode invalidates a code. DEL is atomic, so concurrent
// exchanges of the same code see exactly one successful revocation.
func (s *Store) RevokeAuthorizationCode(ctx context.Context, code *model.AuthorizationCode) (bool, error) {
	n, err := s.client.Del(ctx, s.key(keyTypeCode, code.Code)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke authorization code: %w", err)
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

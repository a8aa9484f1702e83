// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package memory provides a thread-safe in-memory model implementation.
// It is suitable for development and testing; production deployments should
// use a persistent backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/storage"
)

// DefaultCleanupInterval is how often expired codes and tokens are purged.
const DefaultCleanupInterval = 5 * time.Minute

// clientRecord pairs a client with its bcrypt secret hash. Public clients
// have a nil hash.
type clientRecord struct {
	client     *model.Client
	secretHash []byte
}

// userRecord pairs a user with its bcrypt password hash.
type userRecord struct {
	user         *storage.User
	passwordHash []byte
}

// Store implements the full model capability set with in-memory maps.
// All methods are safe for concurrent use. A background goroutine purges
// expired codes and tokens; call Close when the store is no longer needed.
type Store struct {
	mu sync.RWMutex

	// clients maps client ID -> record.
	clients map[string]*clientRecord

	// users maps user ID -> record; usernames indexes username -> user ID
	// for the password grant lookup.
	users     map[string]*userRecord
	usernames map[string]string

	// clientUsers maps client ID -> user ID for the client_credentials grant.
	clientUsers map[string]string

	// codes maps authorization code value -> code. Codes are single-use;
	// revocation deletes the entry.
	codes map[string]*model.AuthorizationCode

	// tokens maps access token value -> token.
	tokens map[string]*model.Token

	// refreshTokens maps refresh token value -> refresh token.
	refreshTokens map[string]*model.RefreshToken

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.cleanupInterval = interval
	}
}

// New creates a Store and starts its background cleanup goroutine.
func New(opts ...Option) *Store {
	s := &Store{
		clients:         make(map[string]*clientRecord),
		users:           make(map[string]*userRecord),
		usernames:       make(map[string]string),
		clientUsers:     make(map[string]string),
		codes:           make(map[string]*model.AuthorizationCode),
		tokens:          make(map[string]*model.Token),
		refreshTokens:   make(map[string]*model.RefreshToken),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *Store) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *Store) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired codes and tokens. Collects expired keys
// under the read lock, then deletes under the write lock to keep the write
// lock hold time short.
func (s *Store) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()

	var expiredCodes []string
	for k, v := range s.codes {
		if now.After(v.ExpiresAt) {
			expiredCodes = append(expiredCodes, k)
		}
	}

	var expiredTokens []string
	for k, v := range s.tokens {
		if !v.AccessTokenExpiresAt.IsZero() && now.After(v.AccessTokenExpiresAt) {
			expiredTokens = append(expiredTokens, k)
		}
	}

	var expiredRefreshTokens []string
	for k, v := range s.refreshTokens {
		if !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt) {
			expiredRefreshTokens = append(expiredRefreshTokens, k)
		}
	}

	s.mu.RUnlock()

	if len(expiredCodes) == 0 && len(expiredTokens) == 0 && len(expiredRefreshTokens) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range expiredCodes {
		delete(s.codes, k)
	}
	for _, k := range expiredTokens {
		delete(s.tokens, k)
	}
	for _, k := range expiredRefreshTokens {
		delete(s.refreshTokens, k)
	}
}

// -----------------------
// Seeding
// -----------------------

// AddClient registers a client. An empty secret registers a public client.
func (s *Store) AddClient(_ context.Context, client *model.Client, secret string) error {
	var hash []byte
	if secret != "" {
		var err error
		hash, err = storage.HashSecret(secret)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ID] = &clientRecord{client: client, secretHash: hash}
	return nil
}

// AddUser registers a resource owner with a password.
func (s *Store) AddUser(_ context.Context, user *storage.User, password string) error {
	hash, err := storage.HashSecret(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.ID] = &userRecord{user: user, passwordHash: hash}
	s.usernames[user.Username] = user.ID
	return nil
}

// LinkClientUser associates a user with a client for the client_credentials
// grant.
func (s *Store) LinkClientUser(_ context.Context, clientID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientUsers[clientID] = userID
	return nil
}

// -----------------------
// model.ClientStore
// -----------------------

// GetClient looks a client up by ID. With a non-empty secret the bcrypt
// hash must match; bcrypt's comparison is constant-time over the hash.
func (s *Store) GetClient(_ context.Context, id, secret string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.clients[id]
	if !ok {
		return nil, nil
	}
	if secret != "" && !storage.CheckSecret(rec.secretHash, secret) {
		return nil, nil
	}
	return rec.client, nil
}

// -----------------------
// model.UserStore / model.ClientUserStore
// -----------------------

// GetUser authenticates a resource owner by username and password.
func (s *Store) GetUser(_ context.Context, username, password string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, nil
	}
	rec := s.users[id]
	if rec == nil || !storage.CheckSecret(rec.passwordHash, password) {
		return nil, nil
	}
	return rec.user, nil
}

// GetUserFromClient returns the user linked to a client, if any.
func (s *Store) GetUserFromClient(_ context.Context, client *model.Client) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.clientUsers[client.ID]
	if !ok {
		return nil, nil
	}
	rec := s.users[id]
	if rec == nil {
		return nil, nil
	}
	return rec.user, nil
}

// -----------------------
// model.TokenSaver / model.AccessTokenStore / model.RefreshTokenStore
// -----------------------

// SaveToken persists the token, indexing the refresh token separately when
// one was issued.
func (s *Store) SaveToken(_ context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.AccessToken] = token
	if token.RefreshToken != "" {
		s.refreshTokens[token.RefreshToken] = &model.RefreshToken{
			Token:     token.RefreshToken,
			ExpiresAt: token.RefreshTokenExpiresAt,
			Scope:     token.Scope,
			Client:    client,
			User:      user,
		}
	}
	return token, nil
}

// GetAccessToken looks up a token by its access token value.
func (s *Store) GetAccessToken(_ context.Context, accessToken string) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[accessToken]
	if !ok {
		return nil, nil
	}
	return token, nil
}

// GetRefreshToken looks up a refresh token by value.
func (s *Store) GetRefreshToken(_ context.Context, refreshToken string) (*model.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.refreshTokens[refreshToken]
	if !ok {
		return nil, nil
	}
	return token, nil
}

// RevokeToken invalidates a refresh token. Returns false when the token was
// already unknown or revoked.
func (s *Store) RevokeToken(_ context.Context, token *model.RefreshToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token.Token]; !ok {
		return false, nil
	}
	delete(s.refreshTokens, token.Token)
	return true, nil
}

// -----------------------
// model.AuthorizationCodeStore
// -----------------------

// SaveAuthorizationCode persists the code.
func (s *Store) SaveAuthorizationCode(_ context.Context, code *model.AuthorizationCode, _ *model.Client, _ model.User) (*model.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[code.Code] = code
	return code, nil
}

// GetAuthorizationCode looks up a code by value.
func (s *Store) GetAuthorizationCode(_ context.Context, code string) (*model.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	return stored, nil
}

// RevokeAuthorizationCode invalidates a code. Returns false when the code
// was already unknown or revoked.
func (s *Store) RevokeAuthorizationCode(_ context.Context, code *model.AuthorizationCode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code.Code]; !ok {
		return false, nil
	}
	delete(s.codes, code.Code)
	return true, nil
}

// -----------------------
// model.ScopeVerifier
// -----------------------

// VerifyScope reports whether the token's granted scope covers the required
// scope.
func (s *Store) VerifyScope(_ context.Context, token *model.Token, scope string) (bool, error) {
	return storage.ScopeAllows(token.Scope, scope), nil
}

// -----------------------
// Stats (for testing and monitoring)
// -----------------------

// Stats contains counts of the store contents.
type Stats struct {
	Clients       int
	Users         int
	Codes         int
	Tokens        int
	RefreshTokens int
}

// Stats returns current counts of the store contents.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Clients:       len(s.clients),
		Users:         len(s.users),
		Codes:         len(s.codes),
		Tokens:        len(s.tokens),
		RefreshTokens: len(s.refreshTokens),
	}
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

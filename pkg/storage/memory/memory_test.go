// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/storage"
)

func seededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	s := New(opts...)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	ctx := context.Background()
	require.NoError(t, s.AddClient(ctx, &model.Client{
		ID:           "client-1",
		Grants:       []string{"authorization_code", "password", "refresh_token"},
		RedirectURIs: []string{"https://client.example.com/cb"},
	}, "s3cret"))
	require.NoError(t, s.AddUser(ctx, &storage.User{ID: "user-1", Username: "alice"}, "wonder"))
	require.NoError(t, s.LinkClientUser(ctx, "client-1", "user-1"))
	return s
}

func TestGetClient(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	ctx := context.Background()

	client, err := s.GetClient(ctx, "client-1", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "client-1", client.ID)

	// Lookups without a secret skip verification (authorize pipeline).
	client, err = s.GetClient(ctx, "client-1", "")
	require.NoError(t, err)
	assert.NotNil(t, client)

	client, err = s.GetClient(ctx, "client-1", "wrong")
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = s.GetClient(ctx, "nope", "s3cret")
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestGetUser(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	ctx := context.Background()

	user, err := s.GetUser(ctx, "alice", "wonder")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.(*storage.User).ID)

	user, err = s.GetUser(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = s.GetUser(ctx, "bob", "wonder")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetUserFromClient(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	ctx := context.Background()

	user, err := s.GetUserFromClient(ctx, &model.Client{ID: "client-1"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.(*storage.User).ID)

	user, err = s.GetUserFromClient(ctx, &model.Client{ID: "unlinked"})
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestAuthorizationCodeLifecycle(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	ctx := context.Background()

	code := &model.AuthorizationCode{
		Code:      "code-1",
		ExpiresAt: time.Now().Add(5 * time.Minute),
		Scope:     "read",
		Client:    &model.Client{ID: "client-1"},
		User:      &storage.User{ID: "user-1"},
	}
	saved, err := s.SaveAuthorizationCode(ctx, code, code.Client, code.User)
	require.NoError(t, err)
	require.NotNil(t, saved)

	got, err := s.GetAuthorizationCode(ctx, "code-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "read", got.Scope)

	revoked, err := s.RevokeAuthorizationCode(ctx, code)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Second revocation reports the code as already gone.
	revoked, err = s.RevokeAuthorizationCode(ctx, code)
	require.NoError(t, err)
	assert.False(t, revoked)

	got, err = s.GetAuthorizationCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenLifecycle(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	ctx := context.Background()

	client := &model.Client{ID: "client-1"}
	user := &storage.User{ID: "user-1"}
	token := &model.Token{
		AccessToken:           "at-1",
		AccessTokenExpiresAt:  time.Now().Add(time.Hour),
		RefreshToken:          "rt-1",
		RefreshTokenExpiresAt: time.Now().Add(24 * time.Hour),
		Scope:                 "read write",
		Client:                client,
		User:                  user,
	}
	_, err := s.SaveToken(ctx, token, client, user)
	require.NoError(t, err)

	got, err := s.GetAccessToken(ctx, "at-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "read write", got.Scope)

	refresh, err := s.GetRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, refresh)
	assert.Equal(t, "read write", refresh.Scope)
	assert.Equal(t, client, refresh.Client)

	revoked, err := s.RevokeToken(ctx, refresh)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.RevokeToken(ctx, refresh)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSaveTokenWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	ctx := context.Background()

	token := &model.Token{
		AccessToken:          "at-only",
		AccessTokenExpiresAt: time.Now().Add(time.Hour),
		Client:               &model.Client{ID: "client-1"},
		User:                 &storage.User{ID: "user-1"},
	}
	_, err := s.SaveToken(ctx, token, token.Client, token.User)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Stats().RefreshTokens)
}

func TestVerifyScope(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	token := &model.Token{Scope: "read write"}

	ok, err := s.VerifyScope(context.Background(), token, "read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifyScope(context.Background(), token, "admin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupPurgesExpiredEntries(t *testing.T) {
	t.Parallel()

	s := seededStore(t, WithCleanupInterval(10*time.Millisecond))
	ctx := context.Background()

	expired := time.Now().Add(-time.Minute)
	_, err := s.SaveAuthorizationCode(ctx, &model.AuthorizationCode{
		Code:      "expired-code",
		ExpiresAt: expired,
	}, nil, nil)
	require.NoError(t, err)

	_, err = s.SaveToken(ctx, &model.Token{
		AccessToken:           "expired-at",
		AccessTokenExpiresAt:  expired,
		RefreshToken:          "expired-rt",
		RefreshTokenExpiresAt: expired,
	}, nil, nil)
	require.NoError(t, err)

	// Tokens without an expiry must survive the sweep.
	_, err = s.SaveToken(ctx, &model.Token{AccessToken: "immortal"}, nil, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		stats := s.Stats()
		return stats.Codes == 0 && stats.Tokens == 1 && stats.RefreshTokens == 0
	}, 2*time.Second, 20*time.Millisecond)

	got, err := s.GetAccessToken(ctx, "immortal")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	stats := s.Stats()
	assert.Equal(t, 1, stats.Clients)
	assert.Equal(t, 1, stats.Users)
}

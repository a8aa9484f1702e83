// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// plainModel covers every capability the default server needs except
// VerifyScope.
type plainModel struct{}

func (plainModel) GetClient(context.Context, string, string) (*model.Client, error) {
	return &model.Client{
		ID:           "client-1",
		Grants:       []string{"authorization_code", "client_credentials", "password", "refresh_token"},
		RedirectURIs: []string{"https://client.example.com/cb"},
	}, nil
}

func (plainModel) GetAccessToken(_ context.Context, accessToken string) (*model.Token, error) {
	if accessToken != "tok-1" {
		return nil, nil
	}
	return &model.Token{
		AccessToken:          "tok-1",
		AccessTokenExpiresAt: time.Now().Add(time.Hour),
		Scope:                "read",
		Client:               &model.Client{ID: "client-1"},
		User:                 "user-1",
	}, nil
}

func (plainModel) SaveToken(_ context.Context, token *model.Token, _ *model.Client, _ model.User) (*model.Token, error) {
	return token, nil
}

func (plainModel) GetAuthorizationCode(context.Context, string) (*model.AuthorizationCode, error) {
	return nil, nil
}

func (plainModel) SaveAuthorizationCode(_ context.Context, code *model.AuthorizationCode, _ *model.Client, _ model.User) (*model.AuthorizationCode, error) {
	return code, nil
}

func (plainModel) RevokeAuthorizationCode(context.Context, *model.AuthorizationCode) (bool, error) {
	return false, nil
}

func (plainModel) GetUser(context.Context, string, string) (model.User, error) {
	return nil, nil
}

func (plainModel) GetUserFromClient(context.Context, *model.Client) (model.User, error) {
	return nil, nil
}

func (plainModel) GetRefreshToken(context.Context, string) (*model.RefreshToken, error) {
	return nil, nil
}

func (plainModel) RevokeToken(context.Context, *model.RefreshToken) (bool, error) {
	return false, nil
}

// scopedModel adds the VerifyScope capability.
type scopedModel struct {
	plainModel
}

func (scopedModel) VerifyScope(_ context.Context, token *model.Token, scope string) (bool, error) {
	return token.Scope == scope, nil
}

var (
	_ model.ClientStore     = plainModel{}
	_ model.ScopeVerifier   = scopedModel{}
	_ model.TokenSaver      = plainModel{}
	_ model.UserStore       = plainModel{}
	_ model.ClientUserStore = plainModel{}
)

func bearerGet(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthenticateMiddlewarePassesValidToken(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(scopedModel{})
	require.NoError(t, err)

	var got *model.Token
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	srv.AuthenticateMiddleware("read")(next).ServeHTTP(rec, bearerGet("tok-1"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.AccessToken)
	assert.Equal(t, "read", rec.Header().Get("X-Accepted-OAuth-Scopes"))
	assert.Equal(t, "read", rec.Header().Get("X-OAuth-Scopes"))
}

func TestAuthenticateMiddlewareWritesChallenge(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(scopedModel{})
	require.NoError(t, err)

	nextRan := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { nextRan = true })

	rec := httptest.NewRecorder()
	srv.AuthenticateMiddleware("")(next).ServeHTTP(rec, bearerGet(""))

	assert.False(t, nextRan)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="Service"`, rec.Header().Get("WWW-Authenticate"))
}

func TestAuthenticateMiddlewareScopeRequiresVerifier(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(plainModel{})
	require.NoError(t, err)

	nextRan := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { nextRan = true })

	// The model cannot verify scopes, so a scoped middleware must reject
	// every request as a configuration error, valid token or not.
	rec := httptest.NewRecorder()
	srv.AuthenticateMiddleware("read")(next).ServeHTTP(rec, bearerGet("tok-1"))

	assert.False(t, nextRan)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrInvalidArgument, body["error"])
}

func TestServerAuthenticateScopeWithoutVerifier(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(plainModel{})
	require.NoError(t, err)

	req := &message.Request{
		Method: http.MethodGet,
		Header: http.Header{"Authorization": {"Bearer tok-1"}},
		Query:  url.Values{},
		Body:   url.Values{},
	}
	resp := message.NewResponse()
	_, err = srv.Authenticate(context.Background(), req, resp, "read")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))

	// The error is encoded into the response, never left as a blank 200.
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	oauthErr, ok := resp.Body().(*errors.Error)
	require.True(t, ok)
	assert.Equal(t, errors.ErrInvalidArgument, oauthErr.Name)
}

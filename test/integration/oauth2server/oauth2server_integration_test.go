// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth2server_test exercises the full server stack over real HTTP:
// chi routing, the three pipelines, the in-memory store and a standard
// golang.org/x/oauth2 client on the other side of the wire.
package oauth2server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tokenforge/oauth2server/pkg/oauth2"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/storage"
	"github.com/tokenforge/oauth2server/pkg/storage/memory"
)

// newTestServer wires a seeded memory store behind a chi router the way the
// bundled server binary does.
func newTestServer(t *testing.T, opts ...oauth2.Option) *httptest.Server {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	ctx := context.Background()
	require.NoError(t, store.AddClient(ctx, &model.Client{
		ID:           "test-client",
		Grants:       []string{"authorization_code", "client_credentials", "password", "refresh_token"},
		RedirectURIs: []string{"https://client.example.com/cb"},
	}, "test-secret"))
	require.NoError(t, store.AddUser(ctx, &storage.User{ID: "user-1", Username: "alice"}, "wonder"))
	require.NoError(t, store.LinkClientUser(ctx, "test-client", "user-1"))

	srv, err := oauth2.NewServer(store, opts...)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Post("/token", srv.TokenHTTPHandler())
	r.Get("/authorize", srv.AuthorizeHTTPHandler())
	r.Post("/authorize", srv.AuthorizeHTTPHandler())
	r.Group(func(r chi.Router) {
		r.Use(srv.AuthenticateMiddleware(""))
		r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
			token := oauth2.TokenFromContext(req.Context())
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"client_id": token.Client.ID,
				"scope":     token.Scope,
			})
		})
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func TestClientCredentialsFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	cfg := clientcredentials.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenURL:     ts.URL + "/token",
		Scopes:       []string{"read"},
	}
	token, err := cfg.Token(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.True(t, token.Expiry.After(time.Now()))

	// The token works against the protected resource.
	client := cfg.Client(context.Background())
	resp, err := client.Get(ts.URL + "/whoami")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test-client", body["client_id"])
	assert.Equal(t, "read", body["scope"])
}

func TestPasswordFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	cfg := xoauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Endpoint:     xoauth2.Endpoint{TokenURL: ts.URL + "/token"},
	}
	token, err := cfg.PasswordCredentialsToken(context.Background(), "alice", "wonder")
	require.NoError(t, err)

	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)

	_, err = cfg.PasswordCredentialsToken(context.Background(), "alice", "wrong")
	require.Error(t, err)
	var retrieveErr *xoauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, http.StatusBadRequest, retrieveErr.Response.StatusCode)
	assert.Contains(t, string(retrieveErr.Body), "invalid_grant")
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// First obtain a bearer token: the authorize pipeline authenticates the
	// end user with one.
	userToken := passwordToken(t, ts)

	// Step 1: authorization request. The server answers with a redirect
	// carrying the code; the test plays the user agent and does not follow it.
	authzURL := ts.URL + "/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"test-client"},
		"redirect_uri":  {"https://client.example.com/cb"},
		"scope":         {"read"},
		"state":         {"opaque-state"},
	}.Encode()

	req, err := http.NewRequest(http.MethodGet, authzURL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+userToken.AccessToken)

	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client.example.com", location.Host)
	assert.Equal(t, "opaque-state", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	// Step 2: exchange the code through the standard client.
	cfg := xoauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "https://client.example.com/cb",
		Endpoint:     xoauth2.Endpoint{TokenURL: ts.URL + "/token"},
	}
	token, err := cfg.Exchange(context.Background(), code)
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)

	// Step 3: the code is single use.
	_, err = cfg.Exchange(context.Background(), code)
	require.Error(t, err)
	var retrieveErr *xoauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Contains(t, string(retrieveErr.Body), "invalid_grant")
}

func TestRefreshTokenRotation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	original := passwordToken(t, ts)

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {original.RefreshToken},
		"client_id":     {"test-client"},
		"client_secret": {"test-secret"},
	}
	refreshed := postForm(t, ts.URL+"/token", form, http.StatusOK)
	assert.NotEmpty(t, refreshed["access_token"])
	assert.NotEmpty(t, refreshed["refresh_token"])
	assert.NotEqual(t, original.RefreshToken, refreshed["refresh_token"])

	// The rotated-out token no longer works.
	replay := postForm(t, ts.URL+"/token", form, http.StatusBadRequest)
	assert.Equal(t, "invalid_grant", replay["error"])
}

func TestProtectedResourceChallenges(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// No credentials: bare challenge, empty body.
	resp, err := http.Get(ts.URL + "/whoami")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Bearer realm="Service"`, resp.Header.Get("WWW-Authenticate"))
	assert.Empty(t, body)

	// Garbage token: challenge names the error and the body carries it.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/whoami", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Bearer realm="Service",error="invalid_token"`, resp.Header.Get("WWW-Authenticate"))
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "invalid_token", payload["error"])
}

func TestTokenEndpointCacheHeaders(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"test-client"},
		"client_secret": {"test-secret"},
	}
	resp, err := http.PostForm(ts.URL+"/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}

// passwordToken obtains a token for alice via the password grant.
func passwordToken(t *testing.T, ts *httptest.Server) *xoauth2.Token {
	t.Helper()

	cfg := xoauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Endpoint:     xoauth2.Endpoint{TokenURL: ts.URL + "/token"},
	}
	token, err := cfg.PasswordCredentialsToken(context.Background(), "alice", "wonder")
	require.NoError(t, err)
	return token
}

// postForm posts a token request and decodes the JSON response, asserting the
// status code.
func postForm(t *testing.T, target string, form url.Values, wantStatus int) map[string]any {
	t.Helper()

	resp, err := http.PostForm(target, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

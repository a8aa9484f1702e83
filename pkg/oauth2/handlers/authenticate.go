// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// AuthenticateConfig configures an AuthenticateHandler.
type AuthenticateConfig struct {
	// Model is the host persistence adapter.
	Model model.Model

	// Scope is the scope the resource requires, or "" for none. When set,
	// the model must implement ScopeVerifier.
	Scope string

	// AddAcceptedScopesHeader mirrors the required scope into
	// X-Accepted-OAuth-Scopes on success. Nil means true.
	AddAcceptedScopesHeader *bool

	// AddAuthorizedScopesHeader mirrors the token's scope into
	// X-OAuth-Scopes on success. Nil means true.
	AddAuthorizedScopesHeader *bool

	// AllowBearerTokensInQueryString permits the access_token query
	// parameter as a token source. Off by default per RFC 6750 §2.3.
	AllowBearerTokensInQueryString bool
}

// AuthenticateHandler implements resource-side bearer token validation.
type AuthenticateHandler struct {
	cfg      AuthenticateConfig
	tokens   model.AccessTokenStore
	verifier model.ScopeVerifier

	addAcceptedScopes   bool
	addAuthorizedScopes bool
}

// NewAuthenticateHandler creates the handler, asserting the model
// capabilities it needs.
func NewAuthenticateHandler(cfg AuthenticateConfig) (*AuthenticateHandler, error) {
	if cfg.Model == nil {
		return nil, errors.NewInvalidArgumentError("missing model")
	}
	tokens, ok := cfg.Model.(model.AccessTokenStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetAccessToken")
	}

	h := &AuthenticateHandler{
		cfg:                 cfg,
		tokens:              tokens,
		addAcceptedScopes:   true,
		addAuthorizedScopes: true,
	}
	if cfg.AddAcceptedScopesHeader != nil {
		h.addAcceptedScopes = *cfg.AddAcceptedScopesHeader
	}
	if cfg.AddAuthorizedScopesHeader != nil {
		h.addAuthorizedScopes = *cfg.AddAuthorizedScopesHeader
	}
	if cfg.Scope != "" {
		verifier, ok := cfg.Model.(model.ScopeVerifier)
		if !ok {
			return nil, errors.NewInvalidArgumentError("model does not implement VerifyScope")
		}
		h.verifier = verifier
	}
	return h, nil
}

// Handle validates the request's bearer token and decorates the response.
// On failure the response carries the RFC 6750 WWW-Authenticate challenge.
func (h *AuthenticateHandler) Handle(ctx context.Context, req *message.Request, resp *message.Response) (*model.Token, error) {
	token, err := h.handle(ctx, req)
	if err != nil {
		oauthErr := errors.Wrap(err)
		if errors.IsServerError(oauthErr) {
			slog.Error("bearer token validation failed", "error", oauthErr)
		}
		resp.Status = oauthErr.Status
		challenge := `Bearer realm="Service"`
		// unauthorized_request is not an RFC 6750 error code; the bare
		// challenge and an empty body are the whole answer.
		if errors.IsUnauthorizedRequest(oauthErr) {
			resp.SetHeader("WWW-Authenticate", challenge)
			return nil, oauthErr
		}
		resp.SetHeader("WWW-Authenticate", fmt.Sprintf("%s,error=%q", challenge, oauthErr.Name))
		resp.SetBody(oauthErr)
		return nil, oauthErr
	}

	if h.cfg.Scope != "" && h.addAcceptedScopes {
		resp.SetHeader("X-Accepted-OAuth-Scopes", h.cfg.Scope)
	}
	if h.cfg.Scope != "" && h.addAuthorizedScopes {
		resp.SetHeader("X-OAuth-Scopes", token.Scope)
	}
	return token, nil
}

// AuthenticateUser lets an AuthenticateHandler serve as the authorize
// pipeline's user source: the bearer token's user is the authenticated user.
func (h *AuthenticateHandler) AuthenticateUser(ctx context.Context, req *message.Request, resp *message.Response) (model.User, error) {
	token, err := h.Handle(ctx, req, resp)
	if err != nil {
		return nil, err
	}
	return token.User, nil
}

func (h *AuthenticateHandler) handle(ctx context.Context, req *message.Request) (*model.Token, error) {
	raw, err := h.tokenFromRequest(req)
	if err != nil {
		return nil, err
	}

	token, err := h.tokens.GetAccessToken(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if token == nil {
		return nil, errors.NewInvalidTokenError("Invalid token: access token is invalid")
	}
	if token.User == nil {
		return nil, errors.NewServerError("server error: model returned no user", nil)
	}
	if token.AccessTokenExpiresAt.IsZero() {
		return nil, errors.NewServerError("server error: `accessTokenExpiresAt` must be set", nil)
	}
	if token.AccessTokenExpiresAt.Before(time.Now()) {
		return nil, errors.NewInvalidTokenError("Invalid token: access token has expired")
	}

	if h.cfg.Scope != "" {
		ok, err := h.verifier.VerifyScope(ctx, token, h.cfg.Scope)
		if err != nil {
			return nil, errors.Wrap(err)
		}
		if !ok {
			return nil, errors.NewInsufficientScopeError("Insufficient scope: authorized scope is insufficient")
		}
	}
	return token, nil
}

// tokenFromRequest extracts the bearer token. The Authorization header is
// authoritative; the query string works only when enabled; a form body
// access_token rides on POSTs. Presenting more than one source is an error.
func (h *AuthenticateHandler) tokenFromRequest(req *message.Request) (string, error) {
	header := req.Header.Get("Authorization")
	query := req.QueryValue("access_token")
	body := req.BodyValue("access_token")

	sources := 0
	for _, present := range []bool{header != "", query != "", body != ""} {
		if present {
			sources++
		}
	}
	if sources > 1 {
		return "", errors.NewInvalidRequestError("Invalid request: only one authentication method is allowed")
	}

	switch {
	case header != "":
		const prefix = "Bearer "
		if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
			return "", errors.NewInvalidRequestError("Invalid request: malformed authorization header")
		}
		return header[len(prefix):], nil
	case query != "":
		if !h.cfg.AllowBearerTokensInQueryString {
			return "", errors.NewInvalidRequestError("Invalid request: do not send bearer tokens in query URLs")
		}
		return query, nil
	case body != "":
		if req.Method == http.MethodGet {
			return "", errors.NewInvalidRequestError("Invalid request: token may not be passed in the body when using the GET verb")
		}
		return body, nil
	}
	return "", errors.NewUnauthorizedRequestError("Unauthorized request: no authentication given")
}

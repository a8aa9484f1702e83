// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/generate"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/oauth2/validate"
)

// DefaultAuthorizationCodeLifetime is the default authorization code expiry.
const DefaultAuthorizationCodeLifetime = 5 * time.Minute

// UserAuthenticator resolves the end user behind an authorization request.
// The default is the library's own bearer-token authenticate handler; hosts
// with session cookies or SSO plug in their own.
type UserAuthenticator interface {
	AuthenticateUser(ctx context.Context, req *message.Request, resp *message.Response) (model.User, error)
}

// AuthorizeConfig configures an AuthorizeHandler.
type AuthorizeConfig struct {
	// Model is the host persistence adapter.
	Model model.Model

	// AuthorizationCodeLifetime defaults to five minutes.
	AuthorizationCodeLifetime time.Duration

	// AllowEmptyState permits requests without a state parameter.
	AllowEmptyState bool

	// Authenticator resolves the end user. Defaults to a bearer-token
	// AuthenticateHandler over the same model.
	Authenticator UserAuthenticator

	// ResponseTypes overrides the response type registry. Defaults to
	// {"code": CodeResponseType}.
	ResponseTypes map[string]ResponseType
}

// AuthorizeHandler implements the GET|POST /authorize pipeline.
type AuthorizeHandler struct {
	cfg           AuthorizeConfig
	clients       model.ClientStore
	codes         model.AuthorizationCodeStore
	authenticator UserAuthenticator
	responseTypes map[string]ResponseType
}

// NewAuthorizeHandler creates the handler, asserting the model capabilities
// it needs.
func NewAuthorizeHandler(cfg AuthorizeConfig) (*AuthorizeHandler, error) {
	if cfg.Model == nil {
		return nil, errors.NewInvalidArgumentError("missing model")
	}
	clients, ok := cfg.Model.(model.ClientStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetClient")
	}
	codes, ok := cfg.Model.(model.AuthorizationCodeStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement SaveAuthorizationCode")
	}

	if cfg.AuthorizationCodeLifetime == 0 {
		cfg.AuthorizationCodeLifetime = DefaultAuthorizationCodeLifetime
	}
	authenticator := cfg.Authenticator
	if authenticator == nil {
		var err error
		authenticator, err = NewAuthenticateHandler(AuthenticateConfig{Model: cfg.Model})
		if err != nil {
			return nil, err
		}
	}
	responseTypes := cfg.ResponseTypes
	if responseTypes == nil {
		responseTypes = map[string]ResponseType{ResponseTypeCode: CodeResponseType{}}
	}

	return &AuthorizeHandler{
		cfg:           cfg,
		clients:       clients,
		codes:         codes,
		authenticator: authenticator,
		responseTypes: responseTypes,
	}, nil
}

// Handle runs the authorize pipeline. Errors raised after the redirect URI
// is resolved are delivered as an error redirect; earlier errors, and
// programmer errors, surface as a JSON body with the error's status.
func (h *AuthorizeHandler) Handle(ctx context.Context, req *message.Request, resp *message.Response) (*model.AuthorizationCode, error) {
	var redirect redirectState

	code, err := h.handle(ctx, req, resp, &redirect)
	if err != nil {
		oauthErr := errors.Wrap(err)
		if errors.IsServerError(oauthErr) {
			slog.Error("authorization request failed", "error", oauthErr)
		}
		// Never leak programmer errors through redirect parameters, and
		// never redirect to a URI that was not resolved and validated.
		// server_error still redirects per RFC 6749 §4.1.2.1.
		if redirect.uri == "" || oauthErr.Status == http.StatusInternalServerError {
			resp.Status = oauthErr.Status
			resp.SetBody(oauthErr)
			return nil, oauthErr
		}
		location, buildErr := buildErrorRedirectURI(redirect.uri, oauthErr, redirect.state)
		if buildErr != nil {
			resp.Status = oauthErr.Status
			resp.SetBody(oauthErr)
			return nil, oauthErr
		}
		resp.Redirect(location)
		return nil, oauthErr
	}
	return code, nil
}

// redirectState captures what the error path needs: the validated redirect
// URI, once resolved, and the client's state parameter.
type redirectState struct {
	uri   string
	state string
}

func (h *AuthorizeHandler) handle(ctx context.Context, req *message.Request, resp *message.Response, redirect *redirectState) (*model.AuthorizationCode, error) {
	expiresAt := time.Now().Add(h.cfg.AuthorizationCodeLifetime)

	// Client lookup and user authentication are independent; run them
	// concurrently. The first failure cancels the other.
	var (
		client *model.Client
		user   model.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := h.getClient(gctx, req)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	g.Go(func() error {
		// The authenticator decorates its response with bearer challenge
		// headers; a scratch response keeps them off authorize errors.
		u, err := h.authenticator.AuthenticateUser(gctx, req, message.NewResponse())
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NewServerError("server error: no user authenticated", nil)
	}

	// Body wins over query when both carry redirect_uri; fall back to the
	// client's first registered URI.
	redirectURI := req.Param("redirect_uri")
	if redirectURI == "" {
		redirectURI = client.RedirectURIs[0]
	}
	redirect.uri = redirectURI

	state, err := h.getState(req)
	if err != nil {
		return nil, err
	}
	redirect.state = state

	if req.QueryValue("allowed") == "false" || req.BodyValue("allowed") == "false" {
		return nil, errors.NewAccessDeniedError("Access denied: user denied access to application")
	}

	scope := req.Param("scope")
	if scope != "" && !validate.IsNQSChar(scope) {
		return nil, errors.NewInvalidScopeError("Invalid parameter: `scope`")
	}

	responseType, err := h.resolveResponseType(req)
	if err != nil {
		return nil, err
	}

	codeValue, err := h.generateAuthorizationCode(ctx, client, user, scope)
	if err != nil {
		return nil, err
	}

	code := &model.AuthorizationCode{
		Code:        codeValue,
		ExpiresAt:   expiresAt,
		RedirectURI: redirectURI,
		Scope:       scope,
		Client:      client,
		User:        user,
	}
	saved, err := h.codes.SaveAuthorizationCode(ctx, code, client, user)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if saved == nil {
		return nil, errors.NewServerError("model SaveAuthorizationCode returned no code", nil)
	}

	location, err := responseType.BuildRedirectURI(redirectURI, saved)
	if err != nil {
		return nil, errors.NewServerError("failed to build redirect URI", err)
	}
	if state != "" {
		q := location.Query()
		q.Set("state", state)
		location.RawQuery = q.Encode()
	}
	resp.Redirect(location.String())
	return saved, nil
}

// getClient resolves and validates the requesting client.
func (h *AuthorizeHandler) getClient(ctx context.Context, req *message.Request) (*model.Client, error) {
	clientID := req.Param("client_id")
	if clientID == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `client_id`")
	}
	if !validate.IsVSChar(clientID) {
		return nil, errors.NewInvalidRequestError("Invalid parameter: `client_id`")
	}

	redirectURI := req.Param("redirect_uri")
	if redirectURI != "" && !validate.IsURI(redirectURI) {
		return nil, errors.NewInvalidRequestError("Invalid request: `redirect_uri` is not a valid URI")
	}

	client, err := h.clients.GetClient(ctx, clientID, "")
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if client == nil {
		return nil, errors.NewInvalidClientError("Invalid client: client credentials are invalid")
	}
	if !client.HasGrant("authorization_code") {
		return nil, errors.NewUnauthorizedClientError("Unauthorized client: `grant_type` is invalid")
	}
	if len(client.RedirectURIs) == 0 {
		return nil, errors.NewInvalidClientError("Invalid client: missing client `redirectUri`")
	}
	if redirectURI != "" && !clientHasRedirectURI(client, redirectURI) {
		return nil, errors.NewInvalidClientError("Invalid client: `redirect_uri` does not match client value")
	}
	return client, nil
}

func clientHasRedirectURI(client *model.Client, redirectURI string) bool {
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

func (h *AuthorizeHandler) getState(req *message.Request) (string, error) {
	state := req.Param("state")
	if state == "" {
		if h.cfg.AllowEmptyState {
			return "", nil
		}
		return "", errors.NewInvalidRequestError("Missing parameter: `state`")
	}
	if !validate.IsVSChar(state) {
		return "", errors.NewInvalidRequestError("Invalid parameter: `state`")
	}
	return state, nil
}

func (h *AuthorizeHandler) resolveResponseType(req *message.Request) (ResponseType, error) {
	name := req.Param("response_type")
	if name == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `response_type`")
	}
	responseType, ok := h.responseTypes[name]
	if !ok {
		return nil, errors.NewUnsupportedResponseTypeError("Unsupported response type: `response_type` is not supported")
	}
	return responseType, nil
}

// generateAuthorizationCode prefers the model's generator and falls back to
// a random opaque value.
func (h *AuthorizeHandler) generateAuthorizationCode(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	if gen, ok := h.cfg.Model.(model.AuthorizationCodeGenerator); ok {
		code, err := gen.GenerateAuthorizationCode(ctx, client, user, scope)
		if err != nil {
			return "", errors.Wrap(err)
		}
		if code != "" {
			return code, nil
		}
	}
	code, err := generate.Opaque()
	if err != nil {
		return "", errors.NewServerError("failed to generate authorization code", err)
	}
	return code, nil
}

// buildErrorRedirectURI appends the error, its description and the state to
// the resolved redirect URI.
func buildErrorRedirectURI(redirectURI string, oauthErr *errors.Error, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("error", oauthErr.Name)
	if oauthErr.Description != "" {
		q.Set("error_description", oauthErr.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

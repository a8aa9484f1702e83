// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers implements the three request pipelines: token issuance,
// authorization-code delegation, and bearer-token authentication. Handlers
// are stateless and safe for concurrent use; all per-request state lives on
// the stack.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/grants"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/oauth2/validate"
)

// Default lifetimes for the token handler.
const (
	DefaultAccessTokenLifetime  = time.Hour
	DefaultRefreshTokenLifetime = 14 * 24 * time.Hour
)

// TokenConfig configures a TokenHandler. The zero value plus a model is a
// working configuration; NewTokenHandler fills in the defaults.
type TokenConfig struct {
	// Model is the host persistence adapter.
	Model model.Model

	// AccessTokenLifetime defaults to one hour.
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime defaults to fourteen days.
	RefreshTokenLifetime time.Duration

	// AllowExtendedTokenAttributes lets model-supplied extra attributes
	// through to the response body.
	AllowExtendedTokenAttributes bool

	// RequireClientAuthentication disables client authentication per grant
	// when a grant name maps to false. An empty map means every grant
	// requires authentication.
	RequireClientAuthentication map[string]bool

	// AlwaysIssueNewRefreshToken controls refresh token rotation. Nil means
	// rotate (the default).
	AlwaysIssueNewRefreshToken *bool

	// GrantTypes names the built-in grants to enable. Defaults to all four.
	// The model must satisfy the capability set of every enabled grant.
	GrantTypes []string

	// ExtendedGrantTypes registers extension grants under their name or
	// absolute URI.
	ExtendedGrantTypes map[string]grants.GrantType

	// TokenType overrides the response encoding. Defaults to Bearer.
	TokenType TokenType
}

// TokenHandler implements the POST /token pipeline.
type TokenHandler struct {
	cfg       TokenConfig
	clients   model.ClientStore
	grants    map[string]grants.GrantType
	tokenType TokenType
}

// builtinGrants maps grant names to their constructors.
var builtinGrants = map[string]func(grants.Config) (grants.GrantType, error){
	grants.TypeAuthorizationCode: func(cfg grants.Config) (grants.GrantType, error) { return grants.NewAuthorizationCodeGrant(cfg) },
	grants.TypeClientCredentials: func(cfg grants.Config) (grants.GrantType, error) { return grants.NewClientCredentialsGrant(cfg) },
	grants.TypePassword:          func(cfg grants.Config) (grants.GrantType, error) { return grants.NewPasswordGrant(cfg) },
	grants.TypeRefreshToken:      func(cfg grants.Config) (grants.GrantType, error) { return grants.NewRefreshTokenGrant(cfg) },
}

// NewTokenHandler creates the handler, constructing every enabled grant and
// failing fast when the model misses a required capability.
func NewTokenHandler(cfg TokenConfig) (*TokenHandler, error) {
	if cfg.Model == nil {
		return nil, errors.NewInvalidArgumentError("missing model")
	}
	clients, ok := cfg.Model.(model.ClientStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetClient")
	}

	if cfg.AccessTokenLifetime == 0 {
		cfg.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if cfg.RefreshTokenLifetime == 0 {
		cfg.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	if cfg.GrantTypes == nil {
		cfg.GrantTypes = []string{
			grants.TypeAuthorizationCode,
			grants.TypeClientCredentials,
			grants.TypePassword,
			grants.TypeRefreshToken,
		}
	}
	if cfg.TokenType == nil {
		cfg.TokenType = BearerTokenType{}
	}

	rotate := true
	if cfg.AlwaysIssueNewRefreshToken != nil {
		rotate = *cfg.AlwaysIssueNewRefreshToken
	}
	grantCfg := grants.Config{
		Model:                      cfg.Model,
		AccessTokenLifetime:        cfg.AccessTokenLifetime,
		RefreshTokenLifetime:       cfg.RefreshTokenLifetime,
		AlwaysIssueNewRefreshToken: rotate,
	}

	registry := make(map[string]grants.GrantType)
	for _, name := range cfg.GrantTypes {
		construct, ok := builtinGrants[name]
		if !ok {
			return nil, errors.NewInvalidArgumentError("unknown built-in grant type: " + name)
		}
		grant, err := construct(grantCfg)
		if err != nil {
			return nil, err
		}
		registry[name] = grant
	}
	for name, grant := range cfg.ExtendedGrantTypes {
		if grant == nil {
			return nil, errors.NewInvalidArgumentError("nil extension grant: " + name)
		}
		registry[name] = grant
	}

	return &TokenHandler{
		cfg:       cfg,
		clients:   clients,
		grants:    registry,
		tokenType: cfg.TokenType,
	}, nil
}

// Handle runs the token pipeline and fills the response with either the
// serialized token or the protocol error.
func (h *TokenHandler) Handle(ctx context.Context, req *message.Request, resp *message.Response) (*model.Token, error) {
	token, err := h.handle(ctx, req, resp)
	if err != nil {
		oauthErr := errors.Wrap(err)
		if errors.IsServerError(oauthErr) {
			slog.Error("token request failed", "error", oauthErr)
		} else {
			slog.Debug("token request rejected", "error", oauthErr.Name, "description", oauthErr.Description)
		}
		resp.Status = oauthErr.Status
		resp.SetBody(oauthErr)
		return nil, oauthErr
	}

	resp.Status = http.StatusOK
	resp.SetHeader("Cache-Control", "no-store")
	resp.SetHeader("Pragma", "no-cache")
	resp.SetBody(h.tokenType.Serialize(token))
	return token, nil
}

func (h *TokenHandler) handle(ctx context.Context, req *message.Request, resp *message.Response) (*model.Token, error) {
	if req.Method != http.MethodPost {
		return nil, errors.NewInvalidRequestError("Invalid request: method must be POST")
	}
	if !req.IsForm() {
		return nil, errors.NewInvalidRequestError("Invalid request: content must be application/x-www-form-urlencoded")
	}

	grantType := req.BodyValue("grant_type")

	clientID, clientSecret, fromHeader, err := h.clientCredentials(req, grantType)
	if err != nil {
		return nil, err
	}

	client, err := h.clients.GetClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if client == nil {
		if fromHeader {
			// RFC 6749 §5.2: echo the challenge scheme the client used.
			resp.SetHeader("WWW-Authenticate", `Basic realm="Service"`)
			return nil, errors.NewInvalidClientError("Invalid client: client is invalid").WithStatus(http.StatusUnauthorized)
		}
		return nil, errors.NewInvalidClientError("Invalid client: client is invalid")
	}
	if len(client.Grants) == 0 {
		return nil, errors.NewServerError("server error: missing client `grants`", nil)
	}

	grant, err := h.resolveGrant(grantType, client)
	if err != nil {
		return nil, err
	}

	token, err := grant.Handle(ctx, req, client)
	if err != nil {
		return nil, err
	}
	return h.finalizeToken(token)
}

// clientCredentials resolves the client credentials, preferring HTTP Basic
// over form fields. fromHeader reports whether the Authorization header was
// the source, which switches a failed lookup to a 401.
func (h *TokenHandler) clientCredentials(req *message.Request, grantType string) (clientID, clientSecret string, fromHeader bool, err error) {
	if id, secret, ok := req.BasicAuth(); ok {
		clientID, clientSecret, fromHeader = id, secret, true
	} else {
		clientID = req.BodyValue("client_id")
		clientSecret = req.BodyValue("client_secret")
	}

	secretRequired := h.requireClientAuthentication(grantType)
	if clientID == "" && clientSecret == "" {
		return "", "", fromHeader, errors.NewInvalidClientError("Invalid client: cannot retrieve client credentials")
	}
	if clientID == "" {
		return "", "", fromHeader, errors.NewInvalidRequestError("Missing parameter: `client_id`")
	}
	if !validate.IsVSChar(clientID) {
		return "", "", fromHeader, errors.NewInvalidRequestError("Invalid parameter: `client_id`")
	}
	if clientSecret == "" && secretRequired {
		return "", "", fromHeader, errors.NewInvalidRequestError("Missing parameter: `client_secret`")
	}
	if clientSecret != "" && !validate.IsVSChar(clientSecret) {
		return "", "", fromHeader, errors.NewInvalidRequestError("Invalid parameter: `client_secret`")
	}
	return clientID, clientSecret, fromHeader, nil
}

// requireClientAuthentication reports whether the grant requires a client
// secret. Only an explicit false in the configuration disables it.
func (h *TokenHandler) requireClientAuthentication(grantType string) bool {
	required, ok := h.cfg.RequireClientAuthentication[grantType]
	if !ok {
		return true
	}
	return required
}

func (h *TokenHandler) resolveGrant(grantType string, client *model.Client) (grants.GrantType, error) {
	if grantType == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `grant_type`")
	}
	if !validate.IsNChar(grantType) && !validate.IsURI(grantType) {
		return nil, errors.NewInvalidRequestError("Invalid parameter: `grant_type`")
	}
	grant, ok := h.grants[grantType]
	if !ok {
		return nil, errors.NewUnsupportedGrantTypeError("Unsupported grant type: `grant_type` is invalid")
	}
	if !client.HasGrant(grantType) {
		return nil, errors.NewUnauthorizedClientError("Unauthorized client: `grant_type` is invalid")
	}
	return grant, nil
}

// finalizeToken validates the grant's result and applies the extended
// attribute policy.
func (h *TokenHandler) finalizeToken(token *model.Token) (*model.Token, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.NewServerError("server error: model returned no access token", nil)
	}
	if token.Client == nil {
		return nil, errors.NewServerError("server error: model returned no client", nil)
	}
	if token.User == nil {
		return nil, errors.NewServerError("server error: model returned no user", nil)
	}
	if !h.cfg.AllowExtendedTokenAttributes && token.Extra != nil {
		// The model owns the token it returned; drop the attributes on a
		// copy instead of mutating it.
		stripped := *token
		stripped.Extra = nil
		return &stripped, nil
	}
	return token, nil
}

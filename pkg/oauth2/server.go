// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth2 is the embedding surface of the authorization server
// library. A Server binds a host-supplied model to the three request
// pipelines: Token, Authorize and Authenticate. The Server owns no HTTP
// transport and no storage; the net/http adaptors in http.go are a
// convenience for hosts that use the standard library stack.
package oauth2

import (
	"context"
	"time"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/grants"
	"github.com/tokenforge/oauth2server/pkg/oauth2/handlers"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// Server dispatches requests to pre-built handler instances. It is
// immutable after construction and safe for concurrent use.
type Server struct {
	mdl model.Model

	tokenHandler     *handlers.TokenHandler
	authorizeHandler *handlers.AuthorizeHandler
	authHandler      *handlers.AuthenticateHandler

	authCfg handlers.AuthenticateConfig
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	token handlers.TokenConfig
	authz handlers.AuthorizeConfig
	authn handlers.AuthenticateConfig
}

// WithAccessTokenLifetime overrides the one hour access token default.
func WithAccessTokenLifetime(lifetime time.Duration) Option {
	return func(c *serverConfig) { c.token.AccessTokenLifetime = lifetime }
}

// WithRefreshTokenLifetime overrides the fourteen day refresh token default.
func WithRefreshTokenLifetime(lifetime time.Duration) Option {
	return func(c *serverConfig) { c.token.RefreshTokenLifetime = lifetime }
}

// WithAuthorizationCodeLifetime overrides the five minute code default.
func WithAuthorizationCodeLifetime(lifetime time.Duration) Option {
	return func(c *serverConfig) { c.authz.AuthorizationCodeLifetime = lifetime }
}

// WithAllowEmptyState permits authorize requests without a state parameter.
func WithAllowEmptyState(allow bool) Option {
	return func(c *serverConfig) { c.authz.AllowEmptyState = allow }
}

// WithAllowExtendedTokenAttributes lets model-supplied extra token
// attributes through to token responses.
func WithAllowExtendedTokenAttributes(allow bool) Option {
	return func(c *serverConfig) { c.token.AllowExtendedTokenAttributes = allow }
}

// WithAllowBearerTokensInQueryString permits the access_token query
// parameter on protected resources.
func WithAllowBearerTokensInQueryString(allow bool) Option {
	return func(c *serverConfig) { c.authn.AllowBearerTokensInQueryString = allow }
}

// WithRequireClientAuthentication marks grants whose clients may skip
// authentication (map a grant name to false). Unlisted grants require it.
func WithRequireClientAuthentication(require map[string]bool) Option {
	return func(c *serverConfig) { c.token.RequireClientAuthentication = require }
}

// WithRefreshTokenRotation toggles refresh token rotation. Rotation is on by
// default; with it off, the refresh_token grant leaves the presented token
// valid and issues no replacement.
func WithRefreshTokenRotation(rotate bool) Option {
	return func(c *serverConfig) { c.token.AlwaysIssueNewRefreshToken = &rotate }
}

// WithGrantTypes restricts the enabled built-in grants. The default is all
// four; the model must cover the capability set of every enabled grant.
func WithGrantTypes(names ...string) Option {
	return func(c *serverConfig) { c.token.GrantTypes = names }
}

// WithExtendedGrant registers an extension grant under its name or URI.
func WithExtendedGrant(name string, grant grants.GrantType) Option {
	return func(c *serverConfig) {
		if c.token.ExtendedGrantTypes == nil {
			c.token.ExtendedGrantTypes = map[string]grants.GrantType{}
		}
		c.token.ExtendedGrantTypes[name] = grant
	}
}

// WithUserAuthenticator replaces the authorize pipeline's user source.
func WithUserAuthenticator(a handlers.UserAuthenticator) Option {
	return func(c *serverConfig) { c.authz.Authenticator = a }
}

// NewServer builds a Server over the given model, constructing all three
// handlers up front so configuration errors surface immediately.
func NewServer(mdl model.Model, opts ...Option) (*Server, error) {
	if mdl == nil {
		return nil, errors.NewInvalidArgumentError("missing model")
	}

	cfg := serverConfig{}
	cfg.token.Model = mdl
	cfg.authz.Model = mdl
	cfg.authn.Model = mdl
	for _, opt := range opts {
		opt(&cfg)
	}

	tokenHandler, err := handlers.NewTokenHandler(cfg.token)
	if err != nil {
		return nil, err
	}
	authHandler, err := handlers.NewAuthenticateHandler(cfg.authn)
	if err != nil {
		return nil, err
	}
	if cfg.authz.Authenticator == nil {
		cfg.authz.Authenticator = authHandler
	}
	authorizeHandler, err := handlers.NewAuthorizeHandler(cfg.authz)
	if err != nil {
		return nil, err
	}

	return &Server{
		mdl:              mdl,
		tokenHandler:     tokenHandler,
		authorizeHandler: authorizeHandler,
		authHandler:      authHandler,
		authCfg:          cfg.authn,
	}, nil
}

// Token runs the token endpoint pipeline.
func (s *Server) Token(ctx context.Context, req *message.Request, resp *message.Response) (*model.Token, error) {
	return s.tokenHandler.Handle(ctx, req, resp)
}

// Authorize runs the authorize endpoint pipeline.
func (s *Server) Authorize(ctx context.Context, req *message.Request, resp *message.Response) (*model.AuthorizationCode, error) {
	return s.authorizeHandler.Handle(ctx, req, resp)
}

// Authenticate validates the request's bearer token. A non-empty scope is
// required of the token; it needs a model implementing VerifyScope. Errors
// are always encoded into resp, including handler construction failures.
func (s *Server) Authenticate(ctx context.Context, req *message.Request, resp *message.Response, scope string) (*model.Token, error) {
	handler, err := s.scopedAuthHandler(scope)
	if err != nil {
		oauthErr := errors.Wrap(err)
		resp.Status = oauthErr.Status
		resp.SetBody(oauthErr)
		return nil, oauthErr
	}
	return handler.Handle(ctx, req, resp)
}

// scopedAuthHandler returns the pre-built handler for an empty scope and a
// scope-checking one otherwise. Construction fails when the model does not
// implement VerifyScope.
func (s *Server) scopedAuthHandler(scope string) (*handlers.AuthenticateHandler, error) {
	if scope == "" {
		return s.authHandler, nil
	}
	cfg := s.authCfg
	cfg.Scope = scope
	return handlers.NewAuthenticateHandler(cfg)
}

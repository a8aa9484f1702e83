// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package grants implements the token-endpoint grant types. Each grant is a
// small state machine conforming to the GrantType interface; the token
// handler dispatches to a registered grant after authenticating the client.
// Extension grants implement the same interface and are registered under
// their name or absolute URI.
package grants

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/generate"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/oauth2/validate"
)

// Built-in grant type names.
const (
	TypeAuthorizationCode = "authorization_code"
	TypeClientCredentials = "client_credentials"
	TypePassword          = "password"
	TypeRefreshToken      = "refresh_token"
)

// GrantType turns an authenticated token request into an issued token.
// Implementations must treat the request as read-only and route every store
// access through the model with the given context.
type GrantType interface {
	Handle(ctx context.Context, req *message.Request, client *model.Client) (*model.Token, error)
}

// Config carries the shared grant construction parameters.
type Config struct {
	// Model is the host persistence adapter.
	Model model.Model

	// AccessTokenLifetime is the default access token lifetime.
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime is the default refresh token lifetime.
	RefreshTokenLifetime time.Duration

	// AlwaysIssueNewRefreshToken controls refresh token rotation in the
	// refresh_token grant.
	AlwaysIssueNewRefreshToken bool
}

// base provides the helpers shared by all grant types.
type base struct {
	cfg   Config
	saver model.TokenSaver
}

func newBase(cfg Config) (base, error) {
	saver, ok := cfg.Model.(model.TokenSaver)
	if !ok {
		return base{}, errors.NewInvalidArgumentError("model does not implement SaveToken")
	}
	return base{cfg: cfg, saver: saver}, nil
}

// requestScope extracts and syntactically validates the scope parameter.
// An absent scope is fine and returns "".
func (base) requestScope(req *message.Request) (string, error) {
	scope := req.Param("scope")
	if scope == "" {
		return "", nil
	}
	if !validate.IsNQSChar(scope) {
		return "", errors.NewInvalidScopeError("Invalid parameter: `scope`")
	}
	return scope, nil
}

// validateScope defers scope policy to the model when it implements
// ScopeValidator. Rejecting a non-empty requested scope is invalid_scope.
func (b base) validateScope(ctx context.Context, user model.User, client *model.Client, scope string) (string, error) {
	validator, ok := b.cfg.Model.(model.ScopeValidator)
	if !ok {
		return scope, nil
	}
	validated, err := validator.ValidateScope(ctx, user, client, scope)
	if err != nil {
		return "", errors.Wrap(err)
	}
	if validated == "" && scope != "" {
		return "", errors.NewInvalidScopeError("Invalid scope: Requested scope is invalid")
	}
	return validated, nil
}

// generateAccessToken prefers the model's generator and falls back to a
// random opaque token when the model has none or returns an empty value.
func (b base) generateAccessToken(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	if gen, ok := b.cfg.Model.(model.AccessTokenGenerator); ok {
		token, err := gen.GenerateAccessToken(ctx, client, user, scope)
		if err != nil {
			return "", errors.Wrap(err)
		}
		if token != "" {
			return token, nil
		}
	}
	token, err := generate.Opaque()
	if err != nil {
		return "", errors.NewServerError("failed to generate access token", err)
	}
	return token, nil
}

// generateRefreshToken mirrors generateAccessToken for refresh tokens.
func (b base) generateRefreshToken(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	if gen, ok := b.cfg.Model.(model.RefreshTokenGenerator); ok {
		token, err := gen.GenerateRefreshToken(ctx, client, user, scope)
		if err != nil {
			return "", errors.Wrap(err)
		}
		if token != "" {
			return token, nil
		}
	}
	token, err := generate.Opaque()
	if err != nil {
		return "", errors.NewServerError("failed to generate refresh token", err)
	}
	return token, nil
}

// accessTokenExpiresAt computes the access token expiry, honoring the
// client's lifetime override.
func (b base) accessTokenExpiresAt(client *model.Client) time.Time {
	lifetime := b.cfg.AccessTokenLifetime
	if client.AccessTokenLifetime > 0 {
		lifetime = client.AccessTokenLifetime
	}
	return time.Now().Add(lifetime)
}

// refreshTokenExpiresAt computes the refresh token expiry, honoring the
// client's lifetime override.
func (b base) refreshTokenExpiresAt(client *model.Client) time.Time {
	lifetime := b.cfg.RefreshTokenLifetime
	if client.RefreshTokenLifetime > 0 {
		lifetime = client.RefreshTokenLifetime
	}
	return time.Now().Add(lifetime)
}

// issue describes a token about to be generated and saved.
type issue struct {
	client *model.Client
	user   model.User

	// scope is the scope to issue. When validateScope is set, the model's
	// scope policy runs over it first.
	scope         string
	validateScope bool

	// withRefresh pairs a refresh token with the access token.
	withRefresh bool

	// authorizationCode is recorded on the token for audit when the token
	// was exchanged for a code.
	authorizationCode string
}

// issueToken generates the token material and persists it via the model.
// The independent pieces (scope policy, token generation) are dispatched
// concurrently; the first failure cancels the rest.
func (b base) issueToken(ctx context.Context, is issue) (*model.Token, error) {
	var (
		scope        = is.scope
		accessToken  string
		refreshToken string
	)

	g, gctx := errgroup.WithContext(ctx)
	if is.validateScope {
		g.Go(func() error {
			validated, err := b.validateScope(gctx, is.user, is.client, is.scope)
			if err != nil {
				return err
			}
			scope = validated
			return nil
		})
	}
	g.Go(func() error {
		token, err := b.generateAccessToken(gctx, is.client, is.user, is.scope)
		if err != nil {
			return err
		}
		accessToken = token
		return nil
	})
	if is.withRefresh {
		g.Go(func() error {
			token, err := b.generateRefreshToken(gctx, is.client, is.user, is.scope)
			if err != nil {
				return err
			}
			refreshToken = token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	token := &model.Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: b.accessTokenExpiresAt(is.client),
		Scope:                scope,
		Client:               is.client,
		User:                 is.user,
		AuthorizationCode:    is.authorizationCode,
	}
	if is.withRefresh {
		token.RefreshToken = refreshToken
		token.RefreshTokenExpiresAt = b.refreshTokenExpiresAt(is.client)
	}

	saved, err := b.saver.SaveToken(ctx, token, is.client, is.user)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if saved == nil {
		return nil, errors.NewServerError("model SaveToken returned no token", nil)
	}
	return saved, nil
}

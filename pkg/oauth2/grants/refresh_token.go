// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"time"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/oauth2/validate"
)

// RefreshTokenGrant trades a refresh token for a fresh access token
// (RFC 6749 §6). With rotation enabled (the default) the presented refresh
// token is revoked before the replacement is saved; with rotation disabled
// the original stays valid and no new refresh token is issued.
type RefreshTokenGrant struct {
	base
	tokens model.RefreshTokenStore
}

// NewRefreshTokenGrant creates the grant, asserting the model capabilities
// it needs.
func NewRefreshTokenGrant(cfg Config) (*RefreshTokenGrant, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	tokens, ok := cfg.Model.(model.RefreshTokenStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetRefreshToken and RevokeToken")
	}
	return &RefreshTokenGrant{base: b, tokens: tokens}, nil
}

// Handle runs the grant for an authenticated client.
func (g *RefreshTokenGrant) Handle(ctx context.Context, req *message.Request, client *model.Client) (*model.Token, error) {
	token, err := g.getRefreshToken(ctx, req, client)
	if err != nil {
		return nil, err
	}

	rotate := g.cfg.AlwaysIssueNewRefreshToken
	if rotate {
		// Same ordering rule as authorization codes: revoke before save.
		revoked, err := g.tokens.RevokeToken(ctx, token)
		if err != nil {
			return nil, errors.Wrap(err)
		}
		if !revoked {
			return nil, errors.NewInvalidGrantError("Invalid grant: refresh token is invalid")
		}
	}

	return g.issueToken(ctx, issue{
		client:      client,
		user:        token.User,
		scope:       token.Scope,
		withRefresh: rotate,
	})
}

func (g *RefreshTokenGrant) getRefreshToken(ctx context.Context, req *message.Request, client *model.Client) (*model.RefreshToken, error) {
	value := req.Param("refresh_token")
	if value == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `refresh_token`")
	}
	if !validate.IsVSChar(value) {
		return nil, errors.NewInvalidRequestError("Invalid parameter: `refresh_token`")
	}

	token, err := g.tokens.GetRefreshToken(ctx, value)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if token == nil {
		return nil, errors.NewInvalidGrantError("Invalid grant: refresh token is invalid")
	}
	if token.Client == nil {
		return nil, errors.NewServerError("model GetRefreshToken returned no client", nil)
	}
	if token.User == nil {
		return nil, errors.NewServerError("model GetRefreshToken returned no user", nil)
	}
	if token.Client.ID != client.ID {
		return nil, errors.NewInvalidGrantError("Invalid grant: refresh token was issued to another client")
	}
	if !token.ExpiresAt.IsZero() && token.ExpiresAt.Before(time.Now()) {
		return nil, errors.NewInvalidGrantError("Invalid grant: refresh token has expired")
	}
	return token, nil
}

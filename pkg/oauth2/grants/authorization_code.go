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

// AuthorizationCodeGrant exchanges a single-use authorization code for a
// token pair (RFC 6749 §4.1.3). The code is revoked before the token is
// saved, so a partial failure still burns the code.
type AuthorizationCodeGrant struct {
	base
	codes model.AuthorizationCodeStore
}

// NewAuthorizationCodeGrant creates the grant, asserting the model
// capabilities it needs.
func NewAuthorizationCodeGrant(cfg Config) (*AuthorizationCodeGrant, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	codes, ok := cfg.Model.(model.AuthorizationCodeStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetAuthorizationCode and RevokeAuthorizationCode")
	}
	return &AuthorizationCodeGrant{base: b, codes: codes}, nil
}

// Handle runs the grant for an authenticated client.
func (g *AuthorizationCodeGrant) Handle(ctx context.Context, req *message.Request, client *model.Client) (*model.Token, error) {
	code, err := g.getAuthorizationCode(ctx, req, client)
	if err != nil {
		return nil, err
	}
	if err := g.validateRedirectURI(req, code); err != nil {
		return nil, err
	}

	// Revocation comes first: the code must be single-use even when token
	// persistence fails afterwards.
	revoked, err := g.codes.RevokeAuthorizationCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if !revoked {
		return nil, errors.NewInvalidGrantError("Invalid grant: authorization code is invalid")
	}

	return g.issueToken(ctx, issue{
		client:            client,
		user:              code.User,
		scope:             code.Scope,
		validateScope:     true,
		withRefresh:       true,
		authorizationCode: code.Code,
	})
}

func (g *AuthorizationCodeGrant) getAuthorizationCode(ctx context.Context, req *message.Request, client *model.Client) (*model.AuthorizationCode, error) {
	value := req.Param("code")
	if value == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `code`")
	}
	if !validate.IsVSChar(value) {
		return nil, errors.NewInvalidRequestError("Invalid parameter: `code`")
	}

	code, err := g.codes.GetAuthorizationCode(ctx, value)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if code == nil {
		return nil, errors.NewInvalidGrantError("Invalid grant: authorization code is invalid")
	}
	if code.Client == nil {
		return nil, errors.NewServerError("model GetAuthorizationCode returned no client", nil)
	}
	if code.User == nil {
		return nil, errors.NewServerError("model GetAuthorizationCode returned no user", nil)
	}
	if code.Client.ID != client.ID {
		return nil, errors.NewInvalidGrantError("Invalid grant: authorization code is invalid")
	}
	if code.ExpiresAt.IsZero() {
		return nil, errors.NewServerError("model GetAuthorizationCode returned no expiry", nil)
	}
	if code.ExpiresAt.Before(time.Now()) {
		return nil, errors.NewInvalidGrantError("Invalid grant: authorization code has expired")
	}
	return code, nil
}

// validateRedirectURI enforces the RFC 6749 §4.1.3 rule: when the code was
// bound to a redirect URI, the exchange must repeat it byte for byte.
func (*AuthorizationCodeGrant) validateRedirectURI(req *message.Request, code *model.AuthorizationCode) error {
	if code.RedirectURI == "" {
		return nil
	}
	redirectURI := req.Param("redirect_uri")
	if redirectURI == "" || !validate.IsURI(redirectURI) {
		return errors.NewInvalidRequestError("Invalid request: `redirect_uri` is not a valid URI")
	}
	if redirectURI != code.RedirectURI {
		return errors.NewInvalidRequestError("Invalid request: `redirect_uri` is invalid")
	}
	return nil
}

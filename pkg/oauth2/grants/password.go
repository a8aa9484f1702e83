// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/oauth2/validate"
)

// PasswordGrant trades resource-owner credentials for a token pair
// (RFC 6749 §4.3). The model is the sole authority on the credentials.
type PasswordGrant struct {
	base
	users model.UserStore
}

// NewPasswordGrant creates the grant, asserting the model capabilities it
// needs.
func NewPasswordGrant(cfg Config) (*PasswordGrant, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	users, ok := cfg.Model.(model.UserStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetUser")
	}
	return &PasswordGrant{base: b, users: users}, nil
}

// Handle runs the grant for an authenticated client.
func (g *PasswordGrant) Handle(ctx context.Context, req *message.Request, client *model.Client) (*model.Token, error) {
	scope, err := g.requestScope(req)
	if err != nil {
		return nil, err
	}

	username := req.Param("username")
	if username == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `username`")
	}
	password := req.Param("password")
	if password == "" {
		return nil, errors.NewInvalidRequestError("Missing parameter: `password`")
	}
	if !validate.IsUnicodeNoCRLF(username) {
		return nil, errors.NewInvalidRequestError("Invalid parameter: `username`")
	}
	if !validate.IsUnicodeNoCRLF(password) {
		return nil, errors.NewInvalidRequestError("Invalid parameter: `password`")
	}

	user, err := g.users.GetUser(ctx, username, password)
	if err != nil {
		return nil, errors.Wrap(err)
	}
	if user == nil {
		return nil, errors.NewInvalidGrantError("Invalid grant: user credentials are invalid")
	}

	return g.issueToken(ctx, issue{
		client:        client,
		user:          user,
		scope:         scope,
		validateScope: true,
		withRefresh:   true,
	})
}

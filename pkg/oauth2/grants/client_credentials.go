// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// ClientCredentialsGrant issues an access token for the client's own
// identity (RFC 6749 §4.4). No refresh token is issued, per §4.4.3.
type ClientCredentialsGrant struct {
	base
	users model.ClientUserStore
}

// NewClientCredentialsGrant creates the grant, asserting the model
// capabilities it needs.
func NewClientCredentialsGrant(cfg Config) (*ClientCredentialsGrant, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	users, ok := cfg.Model.(model.ClientUserStore)
	if !ok {
		return nil, errors.NewInvalidArgumentError("model does not implement GetUserFromClient")
	}
	return &ClientCredentialsGrant{base: b, users: users}, nil
}

// Handle runs the grant for an authenticated client.
func (g *ClientCredentialsGrant) Handle(ctx context.Context, req *message.Request, client *model.Client) (*model.Token, error) {
	scope, err := g.requestScope(req)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetUserFromClient(ctx, client)
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
		withRefresh:   false,
	})
}

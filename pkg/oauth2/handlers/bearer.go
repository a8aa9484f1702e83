// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"time"

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// TokenType encodes an issued token into the token endpoint response body.
// Bearer is the only built-in encoding (RFC 6750).
type TokenType interface {
	Serialize(token *model.Token) map[string]any
}

// reservedTokenAttributes are the response fields extended attributes may
// never shadow.
var reservedTokenAttributes = map[string]struct{}{
	"access_token":  {},
	"token_type":    {},
	"expires_in":    {},
	"refresh_token": {},
	"scope":         {},
}

// BearerTokenType serializes tokens in the RFC 6750 bearer shape.
type BearerTokenType struct{}

// Serialize returns the response body for the token. expires_in is the whole
// number of seconds until the access token expires; refresh_token and scope
// are omitted when absent. Extended attributes ride along under their own
// keys, reserved names excluded.
func (BearerTokenType) Serialize(token *model.Token) map[string]any {
	body := map[string]any{
		"access_token": token.AccessToken,
		"token_type":   "Bearer",
	}
	if !token.AccessTokenExpiresAt.IsZero() {
		body["expires_in"] = int64(time.Until(token.AccessTokenExpiresAt) / time.Second)
	}
	if token.RefreshToken != "" {
		body["refresh_token"] = token.RefreshToken
	}
	if token.Scope != "" {
		body["scope"] = token.Scope
	}
	for key, value := range token.Extra {
		if _, reserved := reservedTokenAttributes[key]; reserved {
			continue
		}
		body[key] = value
	}
	return body
}

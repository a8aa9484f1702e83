// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package model defines the persistence and policy contract between the
// library and its host. The host supplies an adapter implementing some subset
// of the capability interfaces below; each handler asserts the capabilities
// it needs at construction time and fails fast with an invalid_argument error
// when one is missing.
//
// All model calls receive the request context and must honor cancellation.
// Returning (nil, nil) from a lookup means "not found" and is translated by
// the caller into the appropriate protocol error; a non-nil error means the
// store itself failed and surfaces as server_error.
//
// Models are the sole interpreters of secrets and tokens. A model comparing
// client secrets or token values must use a constant-time comparison.
package model

import (
	"context"
	"time"
)

// Model is the host-supplied adapter. The concrete capability set is
// discovered through type assertions against the interfaces in this package.
type Model = any

// User is an opaque resource-owner identity. The library never inspects it
// beyond nil checks; it flows from the model into issued tokens and back.
type User = any

// Client is a registered OAuth client application.
type Client struct {
	// ID is the client identifier.
	ID string

	// Grants lists the grant type names this client may use. Must be non-empty.
	Grants []string

	// RedirectURIs is the ordered list of registered absolute redirect URIs.
	// Must be non-empty when Grants contains "authorization_code".
	RedirectURIs []string

	// AccessTokenLifetime overrides the handler default when positive.
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime overrides the handler default when positive.
	RefreshTokenLifetime time.Duration
}

// HasGrant reports whether the client is allowed to use the named grant type.
func (c *Client) HasGrant(name string) bool {
	for _, g := range c.Grants {
		if g == name {
			return true
		}
	}
	return false
}

// AuthorizationCode is a single-use delegation code bound to a
// (client, redirectURI, scope, user) tuple at issue time.
type AuthorizationCode struct {
	// Code is the opaque authorization code value.
	Code string

	// ExpiresAt is the absolute expiry instant.
	ExpiresAt time.Time

	// RedirectURI is the redirect URI the code was issued for, if any.
	RedirectURI string

	// Scope is the granted scope, if any.
	Scope string

	// Client is the client the code was issued to.
	Client *Client

	// User is the resource owner who approved the authorization.
	User User
}

// Token is an issued access token, optionally paired with a refresh token.
type Token struct {
	// AccessToken is the opaque access token value.
	AccessToken string

	// AccessTokenExpiresAt is the access token expiry. Zero means no expiry.
	AccessTokenExpiresAt time.Time

	// RefreshToken is the paired refresh token, if one was issued.
	RefreshToken string

	// RefreshTokenExpiresAt is the refresh token expiry. Zero means no expiry.
	RefreshTokenExpiresAt time.Time

	// Scope is the granted scope, if any.
	Scope string

	// Client is the client the token was issued to.
	Client *Client

	// User is the resource owner the token acts for.
	User User

	// AuthorizationCode records the code this token was exchanged for, for
	// audit purposes. Set only by the authorization_code grant.
	AuthorizationCode string

	// Extra carries model-defined extended attributes. The token handler
	// serializes them only when extended attributes are enabled, and never
	// lets them shadow the reserved response fields.
	Extra map[string]any
}

// RefreshToken resolves a refresh token value to its (client, user, scope).
type RefreshToken struct {
	// Token is the opaque refresh token value.
	Token string

	// ExpiresAt is the refresh token expiry. Zero means no expiry.
	ExpiresAt time.Time

	// Scope is the originally granted scope, if any.
	Scope string

	// Client is the client the token was issued to.
	Client *Client

	// User is the resource owner the token acts for.
	User User
}

// ClientStore looks up clients by identifier and, when given, secret.
// Required by the token and authorize handlers.
type ClientStore interface {
	// GetClient returns the client matching id and, when secret is non-empty,
	// the secret. Returns (nil, nil) when no such client exists or the secret
	// does not match.
	GetClient(ctx context.Context, id, secret string) (*Client, error)
}

// AccessTokenStore looks up issued access tokens. Required by the
// authenticate handler.
type AccessTokenStore interface {
	// GetAccessToken returns the token matching the access token value, or
	// (nil, nil) when unknown.
	GetAccessToken(ctx context.Context, accessToken string) (*Token, error)
}

// ScopeVerifier checks a validated token against a required scope. Required
// by the authenticate handler when a scope is demanded.
type ScopeVerifier interface {
	// VerifyScope reports whether the token's granted scope satisfies the
	// required scope.
	VerifyScope(ctx context.Context, token *Token, scope string) (bool, error)
}

// TokenSaver persists issued tokens. Required by every grant type.
type TokenSaver interface {
	// SaveToken persists the token for the given client and user and returns
	// the stored representation, which may add model-defined extra attributes.
	SaveToken(ctx context.Context, token *Token, client *Client, user User) (*Token, error)
}

// AuthorizationCodeStore manages authorization codes. GetAuthorizationCode
// and RevokeAuthorizationCode are required by the authorization_code grant;
// SaveAuthorizationCode by the authorize handler.
type AuthorizationCodeStore interface {
	// GetAuthorizationCode returns the code matching the value, or (nil, nil)
	// when unknown.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// SaveAuthorizationCode persists the code for the given client and user
	// and returns the stored representation.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, client *Client, user User) (*AuthorizationCode, error)

	// RevokeAuthorizationCode irreversibly invalidates the code. Returning
	// false means the code was already unknown or revoked.
	RevokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) (bool, error)
}

// UserStore authenticates resource-owner credentials. Required by the
// password grant.
type UserStore interface {
	// GetUser returns the user matching the credentials, or (nil, nil) when
	// they are invalid.
	GetUser(ctx context.Context, username, password string) (User, error)
}

// ClientUserStore resolves the identity a client acts as when using the
// client_credentials grant.
type ClientUserStore interface {
	// GetUserFromClient returns the user associated with the client, or
	// (nil, nil) when there is none.
	GetUserFromClient(ctx context.Context, client *Client) (User, error)
}

// RefreshTokenStore manages refresh tokens. Required by the refresh_token
// grant.
type RefreshTokenStore interface {
	// GetRefreshToken returns the refresh token matching the value, or
	// (nil, nil) when unknown.
	GetRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, error)

	// RevokeToken irreversibly invalidates the refresh token. Returning false
	// means the token was already unknown or revoked.
	RevokeToken(ctx context.Context, token *RefreshToken) (bool, error)
}

// AccessTokenGenerator optionally overrides access token generation. An
// empty return value falls back to the library's random generator. Models
// returning signed JWTs implement this together with a verifying
// GetAccessToken.
type AccessTokenGenerator interface {
	GenerateAccessToken(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// RefreshTokenGenerator optionally overrides refresh token generation. An
// empty return value falls back to the library's random generator.
type RefreshTokenGenerator interface {
	GenerateRefreshToken(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// AuthorizationCodeGenerator optionally overrides authorization code
// generation. An empty return value falls back to the library's random
// generator.
type AuthorizationCodeGenerator interface {
	GenerateAuthorizationCode(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// ScopeValidator optionally rewrites or rejects a requested scope before
// token issuance. Returning an empty scope rejects the request with
// invalid_scope. Models without this capability accept scopes as requested.
type ScopeValidator interface {
	ValidateScope(ctx context.Context, user User, client *Client, scope string) (string, error)
}

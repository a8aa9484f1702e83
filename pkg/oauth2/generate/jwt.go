// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package generate

import (
	"context"
	"crypto"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// SubjectFunc maps the model's opaque user to a JWT subject.
type SubjectFunc func(user model.User) string

// JWTGenerator issues signed JWT access tokens. It implements
// model.AccessTokenGenerator, so a model can embed it to switch from opaque
// tokens to self-describing ones; the paired Parse method supports the
// model's GetAccessToken side.
type JWTGenerator struct {
	issuer    string
	lifetime  time.Duration
	algorithm jose.SignatureAlgorithm
	key       any
	signer    jose.Signer
	subjectOf SubjectFunc
}

// JWTClaims are the registered and private claims carried by generated
// access tokens.
type JWTClaims struct {
	jwt.Claims
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
}

// JWTGeneratorOption configures a JWTGenerator.
type JWTGeneratorOption func(*JWTGenerator)

// WithSubjectFunc sets the mapping from model user to JWT subject.
func WithSubjectFunc(fn SubjectFunc) JWTGeneratorOption {
	return func(g *JWTGenerator) {
		g.subjectOf = fn
	}
}

// WithLifetime sets the exp claim distance. Defaults to one hour, matching
// the token handler's access token default.
func WithLifetime(lifetime time.Duration) JWTGeneratorOption {
	return func(g *JWTGenerator) {
		g.lifetime = lifetime
	}
}

// NewJWTGenerator creates a generator signing with the given algorithm and
// key. The key must match the algorithm: a []byte for HMAC algorithms, a
// private key for asymmetric ones.
func NewJWTGenerator(issuer string, alg jose.SignatureAlgorithm, key any, opts ...JWTGeneratorOption) (*JWTGenerator, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	g := &JWTGenerator{
		issuer:    issuer,
		lifetime:  time.Hour,
		algorithm: alg,
		key:       key,
		signer:    signer,
		subjectOf: func(model.User) string { return "" },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GenerateAccessToken returns a signed JWT for the given client, user and
// scope. Implements model.AccessTokenGenerator.
func (g *JWTGenerator) GenerateAccessToken(_ context.Context, client *model.Client, user model.User, scope string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Claims: jwt.Claims{
			ID:       uuid.NewString(),
			Issuer:   g.issuer,
			Subject:  g.subjectOf(user),
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(g.lifetime)),
		},
		ClientID: client.ID,
		Scope:    scope,
	}

	raw, err := jwt.Signed(g.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return raw, nil
}

// Parse verifies a token's signature and returns its claims. Expiry is
// checked against the current time with no leeway beyond go-jose's default.
func (g *JWTGenerator) Parse(raw string) (*JWTClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{g.algorithm})
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	verifyKey := g.key
	if sk, ok := verifyKey.(interface{ Public() crypto.PublicKey }); ok && !isSymmetric(g.algorithm) {
		verifyKey = sk.Public()
	}

	var claims JWTClaims
	if err := tok.Claims(verifyKey, &claims); err != nil {
		return nil, fmt.Errorf("verifying access token: %w", err)
	}
	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validating access token claims: %w", err)
	}
	return &claims, nil
}

func isSymmetric(alg jose.SignatureAlgorithm) bool {
	switch alg {
	case jose.HS256, jose.HS384, jose.HS512:
		return true
	default:
		return false
	}
}

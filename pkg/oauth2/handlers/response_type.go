// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"fmt"
	"net/url"

	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// ResponseTypeCode is the only built-in authorization response type. The
// implicit "token" type is reserved and deliberately unregistered.
const ResponseTypeCode = "code"

// ResponseType encodes an authorization result into the redirect URI.
type ResponseType interface {
	BuildRedirectURI(redirectURI string, code *model.AuthorizationCode) (*url.URL, error)
}

// CodeResponseType appends the authorization code to the redirect URI,
// preserving any query parameters already present.
type CodeResponseType struct{}

// BuildRedirectURI implements ResponseType.
func (CodeResponseType) BuildRedirectURI(redirectURI string, code *model.AuthorizationCode) (*url.URL, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}
	q := u.Query()
	q.Set("code", code.Code)
	u.RawQuery = q.Encode()
	return u, nil
}

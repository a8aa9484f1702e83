// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrInvalidClient, http.StatusBadRequest},
		{ErrInvalidGrant, http.StatusBadRequest},
		{ErrInvalidScope, http.StatusBadRequest},
		{ErrInvalidToken, http.StatusUnauthorized},
		{ErrUnauthorizedClient, http.StatusBadRequest},
		{ErrUnauthorizedRequest, http.StatusUnauthorized},
		{ErrUnsupportedGrantType, http.StatusBadRequest},
		{ErrUnsupportedResponseType, http.StatusBadRequest},
		{ErrAccessDenied, http.StatusBadRequest},
		{ErrInsufficientScope, http.StatusForbidden},
		{ErrServerError, http.StatusServiceUnavailable},
		{ErrInvalidArgument, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(tt.name, "description", nil)
			assert.Equal(t, tt.status, err.Status)
			assert.Equal(t, tt.name, err.Name)
		})
	}
}

func TestWithStatus(t *testing.T) {
	t.Parallel()

	err := NewInvalidClientError("bad credentials")
	raised := err.WithStatus(http.StatusUnauthorized)

	assert.Equal(t, http.StatusUnauthorized, raised.Status)
	// The original must be untouched.
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, err.Name, raised.Name)
}

func TestMarshalJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewInvalidGrantError("Invalid grant: authorization code is invalid"))
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, map[string]string{
		"error":             "invalid_grant",
		"error_description": "Invalid grant: authorization code is invalid",
	}, body)
}

func TestMarshalJSONOmitsEmptyDescription(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(New(ErrInvalidRequest, "", nil))
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, map[string]string{"error": "invalid_request"}, body)
}

func TestWrapPassesThroughTaxonomyErrors(t *testing.T) {
	t.Parallel()

	orig := NewInvalidScopeError("Invalid scope: Requested scope is invalid")
	wrapped := Wrap(fmt.Errorf("grant failed: %w", orig))

	assert.Same(t, orig, wrapped)
}

func TestWrapForeignErrorBecomesServerError(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("connection refused")
	wrapped := Wrap(cause)

	assert.Equal(t, ErrServerError, wrapped.Name)
	assert.Equal(t, http.StatusServiceUnavailable, wrapped.Status)
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsHelpers(t *testing.T) {
	t.Parallel()

	err := NewInvalidTokenError("Invalid token: access token has expired")

	assert.True(t, IsInvalidToken(err))
	assert.False(t, IsInvalidGrant(err))
	// Matching through wrapping.
	assert.True(t, IsInvalidToken(fmt.Errorf("auth: %w", err)))
	assert.False(t, IsInvalidToken(stderrors.New("plain")))
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invalid_request: Missing parameter: `code`",
		NewInvalidRequestError("Missing parameter: `code`").Error())

	withCause := NewServerError("store failed", stderrors.New("timeout"))
	assert.Equal(t, "server_error: store failed: timeout", withCause.Error())
}

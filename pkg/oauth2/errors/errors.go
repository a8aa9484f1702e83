// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the OAuth 2.0 error taxonomy of RFC 6749 §5.2 and
// RFC 6750 §3.1. Every failure surfaced by the library is an *Error carrying
// the machine-readable name sent to clients, the HTTP status code, and an
// optional wrapped cause.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error names as they appear in response bodies and redirect parameters.
const (
	// ErrInvalidRequest is returned for missing, malformed or duplicated parameters.
	ErrInvalidRequest = "invalid_request"

	// ErrInvalidClient is returned for an unknown client or bad client credentials.
	ErrInvalidClient = "invalid_client"

	// ErrInvalidGrant is returned when a code or refresh token is invalid, expired or mismatched.
	ErrInvalidGrant = "invalid_grant"

	// ErrInvalidScope is returned when the requested scope is unknown or exceeds the grant.
	ErrInvalidScope = "invalid_scope"

	// ErrInvalidToken is returned by the resource side for an invalid or expired bearer token.
	ErrInvalidToken = "invalid_token"

	// ErrUnauthorizedClient is returned when the client is not permitted to use a grant.
	ErrUnauthorizedClient = "unauthorized_client"

	// ErrUnauthorizedRequest is returned when a protected resource is accessed without credentials.
	ErrUnauthorizedRequest = "unauthorized_request"

	// ErrUnsupportedGrantType is returned for an unknown grant_type.
	ErrUnsupportedGrantType = "unsupported_grant_type"

	// ErrUnsupportedResponseType is returned for an unknown response_type.
	ErrUnsupportedResponseType = "unsupported_response_type"

	// ErrAccessDenied is returned when the resource owner denied consent.
	ErrAccessDenied = "access_denied"

	// ErrInsufficientScope is returned when a token lacks a required scope.
	ErrInsufficientScope = "insufficient_scope"

	// ErrServerError is returned for unexpected internal failures.
	ErrServerError = "server_error"

	// ErrInvalidArgument signals a programmer error in host configuration.
	ErrInvalidArgument = "invalid_argument"
)

// statusCodes maps each error name to its HTTP status code. invalid_client
// starts at 400 and is raised to 401 by the token handler when credentials
// arrived via the Authorization header.
var statusCodes = map[string]int{
	ErrInvalidRequest:          http.StatusBadRequest,
	ErrInvalidClient:           http.StatusBadRequest,
	ErrInvalidGrant:            http.StatusBadRequest,
	ErrInvalidScope:            http.StatusBadRequest,
	ErrInvalidToken:            http.StatusUnauthorized,
	ErrUnauthorizedClient:      http.StatusBadRequest,
	ErrUnauthorizedRequest:     http.StatusUnauthorized,
	ErrUnsupportedGrantType:    http.StatusBadRequest,
	ErrUnsupportedResponseType: http.StatusBadRequest,
	ErrAccessDenied:            http.StatusBadRequest,
	ErrInsufficientScope:       http.StatusForbidden,
	ErrServerError:             http.StatusServiceUnavailable,
	ErrInvalidArgument:         http.StatusInternalServerError,
}

// Error is an OAuth protocol error.
type Error struct {
	// Name is the machine-readable error name, e.g. "invalid_grant".
	Name string

	// Status is the HTTP status code for this error.
	Status int

	// Description is the human-readable error_description.
	Description string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Name, e.Description, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Description)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithStatus returns a copy of the error with a different HTTP status code.
func (e *Error) WithStatus(status int) *Error {
	clone := *e
	clone.Status = status
	return &clone
}

// MarshalJSON serializes the error in the RFC 6749 §5.2 response body shape.
func (e *Error) MarshalJSON() ([]byte, error) {
	body := map[string]string{"error": e.Name}
	if e.Description != "" {
		body["error_description"] = e.Description
	}
	return json.Marshal(body)
}

// New creates a new OAuth error of the given name.
func New(name, description string, cause error) *Error {
	status, ok := statusCodes[name]
	if !ok {
		status = http.StatusServiceUnavailable
	}
	return &Error{
		Name:        name,
		Status:      status,
		Description: description,
		Cause:       cause,
	}
}

// NewInvalidRequestError creates a new invalid_request error.
func NewInvalidRequestError(description string) *Error {
	return New(ErrInvalidRequest, description, nil)
}

// NewInvalidClientError creates a new invalid_client error.
func NewInvalidClientError(description string) *Error {
	return New(ErrInvalidClient, description, nil)
}

// NewInvalidGrantError creates a new invalid_grant error.
func NewInvalidGrantError(description string) *Error {
	return New(ErrInvalidGrant, description, nil)
}

// NewInvalidScopeError creates a new invalid_scope error.
func NewInvalidScopeError(description string) *Error {
	return New(ErrInvalidScope, description, nil)
}

// NewInvalidTokenError creates a new invalid_token error.
func NewInvalidTokenError(description string) *Error {
	return New(ErrInvalidToken, description, nil)
}

// NewUnauthorizedClientError creates a new unauthorized_client error.
func NewUnauthorizedClientError(description string) *Error {
	return New(ErrUnauthorizedClient, description, nil)
}

// NewUnauthorizedRequestError creates a new unauthorized_request error.
func NewUnauthorizedRequestError(description string) *Error {
	return New(ErrUnauthorizedRequest, description, nil)
}

// NewUnsupportedGrantTypeError creates a new unsupported_grant_type error.
func NewUnsupportedGrantTypeError(description string) *Error {
	return New(ErrUnsupportedGrantType, description, nil)
}

// NewUnsupportedResponseTypeError creates a new unsupported_response_type error.
func NewUnsupportedResponseTypeError(description string) *Error {
	return New(ErrUnsupportedResponseType, description, nil)
}

// NewAccessDeniedError creates a new access_denied error.
func NewAccessDeniedError(description string) *Error {
	return New(ErrAccessDenied, description, nil)
}

// NewInsufficientScopeError creates a new insufficient_scope error.
func NewInsufficientScopeError(description string) *Error {
	return New(ErrInsufficientScope, description, nil)
}

// NewServerError creates a new server_error wrapping an internal failure.
func NewServerError(description string, cause error) *Error {
	return New(ErrServerError, description, cause)
}

// NewInvalidArgumentError creates a new invalid_argument error. It signals a
// host configuration mistake, not a protocol violation.
func NewInvalidArgumentError(description string) *Error {
	return New(ErrInvalidArgument, description, nil)
}

// Wrap returns err unchanged when it already belongs to the taxonomy, and
// wraps anything else as a server_error. This is the handler-boundary rule:
// no foreign error ever reaches a client.
func Wrap(err error) *Error {
	var oauthErr *Error
	if stderrors.As(err, &oauthErr) {
		return oauthErr
	}
	return NewServerError(err.Error(), err)
}

// Is reports whether err is an OAuth error with the given name.
func Is(err error, name string) bool {
	var oauthErr *Error
	return stderrors.As(err, &oauthErr) && oauthErr.Name == name
}

// IsInvalidRequest checks if the error is an invalid_request error.
func IsInvalidRequest(err error) bool { return Is(err, ErrInvalidRequest) }

// IsInvalidClient checks if the error is an invalid_client error.
func IsInvalidClient(err error) bool { return Is(err, ErrInvalidClient) }

// IsInvalidGrant checks if the error is an invalid_grant error.
func IsInvalidGrant(err error) bool { return Is(err, ErrInvalidGrant) }

// IsInvalidScope checks if the error is an invalid_scope error.
func IsInvalidScope(err error) bool { return Is(err, ErrInvalidScope) }

// IsInvalidToken checks if the error is an invalid_token error.
func IsInvalidToken(err error) bool { return Is(err, ErrInvalidToken) }

// IsUnauthorizedClient checks if the error is an unauthorized_client error.
func IsUnauthorizedClient(err error) bool { return Is(err, ErrUnauthorizedClient) }

// IsUnauthorizedRequest checks if the error is an unauthorized_request error.
func IsUnauthorizedRequest(err error) bool { return Is(err, ErrUnauthorizedRequest) }

// IsUnsupportedGrantType checks if the error is an unsupported_grant_type error.
func IsUnsupportedGrantType(err error) bool { return Is(err, ErrUnsupportedGrantType) }

// IsUnsupportedResponseType checks if the error is an unsupported_response_type error.
func IsUnsupportedResponseType(err error) bool { return Is(err, ErrUnsupportedResponseType) }

// IsAccessDenied checks if the error is an access_denied error.
func IsAccessDenied(err error) bool { return Is(err, ErrAccessDenied) }

// IsInsufficientScope checks if the error is an insufficient_scope error.
func IsInsufficientScope(err error) bool { return Is(err, ErrInsufficientScope) }

// IsServerError checks if the error is a server_error.
func IsServerError(err error) bool { return Is(err, ErrServerError) }

// IsInvalidArgument checks if the error is an invalid_argument error.
func IsInvalidArgument(err error) bool { return Is(err, ErrInvalidArgument) }

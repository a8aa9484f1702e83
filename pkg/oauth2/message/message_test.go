// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestParsesFormBody(t *testing.T) {
	t.Parallel()

	form := url.Values{"grant_type": {"password"}, "username": {"alice"}}
	httpReq := httptest.NewRequest(http.MethodPost, "/token?foo=bar", strings.NewReader(form.Encode()))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := NewRequest(httpReq)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.True(t, req.IsForm())
	assert.Equal(t, "password", req.BodyValue("grant_type"))
	assert.Equal(t, "bar", req.QueryValue("foo"))
}

func TestNewRequestIgnoresNonFormBody(t *testing.T) {
	t.Parallel()

	httpReq := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"grant_type":"password"}`))
	httpReq.Header.Set("Content-Type", "application/json")

	req, err := NewRequest(httpReq)
	require.NoError(t, err)

	assert.False(t, req.IsForm())
	assert.Empty(t, req.BodyValue("grant_type"))
}

func TestIsFormWithParameters(t *testing.T) {
	t.Parallel()

	httpReq := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("a=b"))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	req, err := NewRequest(httpReq)
	require.NoError(t, err)
	assert.True(t, req.IsForm())
}

func TestParamPrefersBodyOverQuery(t *testing.T) {
	t.Parallel()

	req := &Request{
		Header: http.Header{},
		Query:  url.Values{"redirect_uri": {"https://query.example.com"}},
		Body:   url.Values{"redirect_uri": {"https://body.example.com"}},
	}
	assert.Equal(t, "https://body.example.com", req.Param("redirect_uri"))

	req.Body.Del("redirect_uri")
	assert.Equal(t, "https://query.example.com", req.Param("redirect_uri"))
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	creds := base64.StdEncoding.EncodeToString([]byte("client-1:s3cret:with:colons"))
	req := &Request{Header: http.Header{"Authorization": {"Basic " + creds}}}

	id, secret, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "client-1", id)
	// Only the first colon separates the credentials.
	assert.Equal(t, "s3cret:with:colons", secret)
}

func TestBasicAuthRejectsMalformedHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{"absent", ""},
		{"bearer scheme", "Bearer abc"},
		{"bad base64", "Basic !!!"},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon"))},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := &Request{Header: http.Header{}}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, _, ok := req.BasicAuth()
			assert.False(t, ok)
		})
	}
}

func TestResponseWriteTo(t *testing.T) {
	t.Parallel()

	resp := NewResponse()
	resp.Status = http.StatusBadRequest
	resp.SetHeader("Cache-Control", "no-store")
	resp.SetBody(map[string]string{"error": "invalid_request"})

	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteTo(rec))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json;charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"invalid_request"}`, rec.Body.String())
}

func TestResponseWriteToWithoutBody(t *testing.T) {
	t.Parallel()

	resp := NewResponse()
	rec := httptest.NewRecorder()
	require.NoError(t, resp.WriteTo(rec))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestResponseRedirect(t *testing.T) {
	t.Parallel()

	resp := NewResponse()
	resp.Redirect("https://client.example.com/cb?code=abc&state=xyz")

	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "https://client.example.com/cb?code=abc&state=xyz", resp.RedirectLocation())
}

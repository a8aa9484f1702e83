// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package message holds the transport-neutral request and response views the
// pipelines operate on. The library never touches the network; the host
// builds a Request from whatever framework delivered the HTTP message and
// flushes the Response back out.
package message

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Request is an immutable view of a decoded HTTP request.
type Request struct {
	// Method is the HTTP method, uppercase.
	Method string

	// Header contains the request headers in canonical form.
	Header http.Header

	// Query contains the decoded query string parameters.
	Query url.Values

	// Body contains the decoded form body parameters.
	Body url.Values
}

// NewRequest builds a Request from a net/http request, consuming the form
// body when the content type is application/x-www-form-urlencoded.
func NewRequest(r *http.Request) (*Request, error) {
	body := url.Values{}
	if isForm(r.Header.Get("Content-Type")) {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parsing form body: %w", err)
		}
		body = r.PostForm
	}

	return &Request{
		Method: strings.ToUpper(r.Method),
		Header: r.Header,
		Query:  r.URL.Query(),
		Body:   body,
	}, nil
}

func isForm(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// IsForm reports whether the request body is form-encoded.
func (r *Request) IsForm() bool {
	return isForm(r.Header.Get("Content-Type"))
}

// BodyValue returns the named form body parameter, or "".
func (r *Request) BodyValue(name string) string {
	return r.Body.Get(name)
}

// QueryValue returns the named query parameter, or "".
func (r *Request) QueryValue(name string) string {
	return r.Query.Get(name)
}

// Param returns the named parameter, preferring the form body over the query
// string when both carry it.
func (r *Request) Param(name string) string {
	if v := r.Body.Get(name); v != "" {
		return v
	}
	return r.Query.Get(name)
}

// BasicAuth decodes the Authorization header's Basic credentials. ok is
// false when the header is absent or not Basic.
func (r *Request) BasicAuth() (username, password string, ok bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Basic "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return username, password, true
}

// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response accumulates the status, headers, body and optional redirect a
// pipeline produces. The host flushes it to its own transport, typically via
// WriteTo.
type Response struct {
	// Status is the HTTP status code. Defaults to 200.
	Status int

	header http.Header
	body   any
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		header: http.Header{},
	}
}

// Header returns the response headers for reading and decoration.
func (r *Response) Header() http.Header {
	return r.header
}

// SetHeader sets a response header, replacing any existing value.
func (r *Response) SetHeader(name, value string) {
	r.header.Set(name, value)
}

// SetBody sets the response body. The body is serialized as JSON when the
// response is written.
func (r *Response) SetBody(body any) {
	r.body = body
}

// Body returns the response body value, or nil.
func (r *Response) Body() any {
	return r.body
}

// Redirect turns the response into a 302 redirect to location.
func (r *Response) Redirect(location string) {
	r.Status = http.StatusFound
	r.header.Set("Location", location)
}

// RedirectLocation returns the Location header, or "" when the response is
// not a redirect.
func (r *Response) RedirectLocation() string {
	return r.header.Get("Location")
}

// WriteTo flushes the accumulated response to a net/http ResponseWriter.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	for name, values := range r.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	if r.body == nil {
		w.WriteHeader(r.Status)
		return nil
	}

	payload, err := json.Marshal(r.body)
	if err != nil {
		return fmt.Errorf("marshaling response body: %w", err)
	}
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(r.Status)
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing response body: %w", err)
	}
	return nil
}

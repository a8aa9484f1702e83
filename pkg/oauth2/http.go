// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth2

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tokenforge/oauth2server/pkg/oauth2/errors"
	"github.com/tokenforge/oauth2server/pkg/oauth2/message"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
)

// tokenContextKey carries the validated token through middleware.
type tokenContextKey struct{}

// TokenFromContext returns the token the authenticate middleware validated
// for this request, or nil.
func TokenFromContext(ctx context.Context) *model.Token {
	token, _ := ctx.Value(tokenContextKey{}).(*model.Token)
	return token
}

// TokenHTTPHandler adapts the token pipeline to net/http.
func (s *Server) TokenHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := message.NewRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := message.NewResponse()
		// The pipeline already encoded any protocol error into resp.
		_, _ = s.Token(r.Context(), req, resp)
		writeResponse(w, resp)
	}
}

// AuthorizeHTTPHandler adapts the authorize pipeline to net/http.
func (s *Server) AuthorizeHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := message.NewRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := message.NewResponse()
		_, _ = s.Authorize(r.Context(), req, resp)
		writeResponse(w, resp)
	}
}

// AuthenticateMiddleware guards a resource with bearer-token validation.
// On success the request proceeds with the token in its context; on failure
// the middleware writes the RFC 6750 challenge response. The scoped handler
// is built once, so a model without VerifyScope fails on every request with
// the construction error rather than passing traffic through.
func (s *Server) AuthenticateMiddleware(scope string) func(http.Handler) http.Handler {
	handler, handlerErr := s.scopedAuthHandler(scope)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := message.NewResponse()
			if handlerErr != nil {
				oauthErr := errors.Wrap(handlerErr)
				resp.Status = oauthErr.Status
				resp.SetBody(oauthErr)
				writeResponse(w, resp)
				return
			}
			req, err := message.NewRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			token, err := handler.Handle(r.Context(), req, resp)
			if err != nil {
				writeResponse(w, resp)
				return
			}
			// Success decoration (scope headers) still belongs on the
			// final response.
			for name, values := range resp.Header() {
				for _, v := range values {
					w.Header().Add(name, v)
				}
			}
			ctx := context.WithValue(r.Context(), tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeResponse(w http.ResponseWriter, resp *message.Response) {
	if err := resp.WriteTo(w); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenforge/oauth2server/pkg/logger"
	"github.com/tokenforge/oauth2server/pkg/oauth2"
	"github.com/tokenforge/oauth2server/pkg/oauth2/generate"
	"github.com/tokenforge/oauth2server/pkg/oauth2/model"
	"github.com/tokenforge/oauth2server/pkg/storage"
	"github.com/tokenforge/oauth2server/pkg/storage/memory"
	"github.com/tokenforge/oauth2server/pkg/storage/redisstore"
	"github.com/tokenforge/oauth2server/pkg/storage/sqlitestore"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server with the selected storage backend.

The server exposes POST /token, GET|POST /authorize and GET /whoami (a sample
bearer-protected endpoint), and seeds a demo client and user so the grant
flows can be exercised immediately.`,
		RunE: runServe,
	}

	flags := cmd.Flags()
	flags.String("address", ":8080", "Address to listen on")
	flags.String("storage", "memory", "Storage backend: memory, redis or sqlite")
	flags.String("redis-addr", "localhost:6379", "Redis address (storage=redis)")
	flags.String("redis-password", "", "Redis password (storage=redis)")
	flags.String("redis-prefix", "oauth2:", "Redis key prefix (storage=redis)")
	flags.String("sqlite-path", "oauth2served.db", "SQLite database path (storage=sqlite)")
	flags.String("jwt-secret", "", "HS256 secret; when set, access tokens are signed JWTs")
	flags.String("issuer", "oauth2served", "Issuer claim for JWT access tokens")
	flags.Duration("access-token-lifetime", time.Hour, "Access token lifetime")
	flags.Duration("refresh-token-lifetime", 14*24*time.Hour, "Refresh token lifetime")
	flags.String("demo-client-id", "demo-client", "Seeded demo client ID")
	flags.String("demo-client-secret", "demo-secret", "Seeded demo client secret")
	flags.String("demo-redirect-uri", "http://localhost:8081/callback", "Seeded demo redirect URI")
	flags.String("demo-username", "demo", "Seeded demo username")
	flags.String("demo-password", "demo", "Seeded demo password")

	for _, name := range []string{
		"address", "storage", "redis-addr", "redis-password", "redis-prefix",
		"sqlite-path", "jwt-secret", "issuer",
		"access-token-lifetime", "refresh-token-lifetime",
		"demo-client-id", "demo-client-secret", "demo-redirect-uri",
		"demo-username", "demo-password",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}

	return cmd
}

// store is the capability set all bundled backends provide, including the
// seeding methods the demo setup uses.
type store interface {
	model.ClientStore
	model.AccessTokenStore
	model.ScopeVerifier
	model.TokenSaver
	model.AuthorizationCodeStore
	model.UserStore
	model.ClientUserStore
	model.RefreshTokenStore

	AddClient(ctx context.Context, client *model.Client, secret string) error
	AddUser(ctx context.Context, user *storage.User, password string) error
	LinkClientUser(ctx context.Context, clientID, userID string) error
}

// jwtStore layers a JWT access token generator over a storage backend.
type jwtStore struct {
	store
	gen *generate.JWTGenerator
}

// GenerateAccessToken implements model.AccessTokenGenerator.
func (s jwtStore) GenerateAccessToken(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	return s.gen.GenerateAccessToken(ctx, client, user, scope)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	address := viper.GetString("address")

	st, closer, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Errorf("Failed to close storage: %v", err)
		}
	}()

	if err := seedDemoData(ctx, st); err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}

	var mdl model.Model = st
	if secret := viper.GetString("jwt-secret"); secret != "" {
		gen, err := generate.NewJWTGenerator(
			viper.GetString("issuer"), jose.HS256, []byte(secret),
			generate.WithLifetime(viper.GetDuration("access-token-lifetime")),
			generate.WithSubjectFunc(func(user model.User) string {
				if u, ok := user.(*storage.User); ok {
					return u.ID
				}
				return ""
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to create JWT generator: %w", err)
		}
		mdl = jwtStore{store: st, gen: gen}
		logger.Info("Issuing JWT access tokens")
	}

	srv, err := oauth2.NewServer(mdl,
		oauth2.WithAccessTokenLifetime(viper.GetDuration("access-token-lifetime")),
		oauth2.WithRefreshTokenLifetime(viper.GetDuration("refresh-token-lifetime")),
	)
	if err != nil {
		return fmt.Errorf("failed to create oauth2 server: %w", err)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(serverRequestTimeout),
	)
	router.Post("/token", srv.TokenHTTPHandler())
	router.Get("/authorize", srv.AuthorizeHTTPHandler())
	router.Post("/authorize", srv.AuthorizeHTTPHandler())
	router.Group(func(r chi.Router) {
		r.Use(srv.AuthenticateMiddleware(""))
		r.Get("/whoami", whoamiHandler)
	})

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}

// buildStore creates the storage backend selected by the storage flag.
func buildStore(ctx context.Context) (store, io.Closer, error) {
	switch backend := viper.GetString("storage"); backend {
	case "memory":
		st := memory.New()
		logger.Info("Using in-memory storage")
		return st, st, nil
	case "redis":
		st, err := redisstore.New(ctx, redisstore.Config{
			Addr:      viper.GetString("redis-addr"),
			Password:  viper.GetString("redis-password"),
			KeyPrefix: viper.GetString("redis-prefix"),
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Using Redis storage at %s", viper.GetString("redis-addr"))
		return st, st, nil
	case "sqlite":
		st, err := sqlitestore.New(ctx, viper.GetString("sqlite-path"))
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Using SQLite storage at %s", viper.GetString("sqlite-path"))
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// seedDemoData registers the demo client and user so every grant flow can be
// exercised out of the box.
func seedDemoData(ctx context.Context, st store) error {
	clientID := viper.GetString("demo-client-id")
	client := &model.Client{
		ID: clientID,
		Grants: []string{
			"authorization_code", "client_credentials", "password", "refresh_token",
		},
		RedirectURIs: []string{viper.GetString("demo-redirect-uri")},
	}
	if err := st.AddClient(ctx, client, viper.GetString("demo-client-secret")); err != nil {
		return err
	}

	user := &storage.User{ID: "demo-user", Username: viper.GetString("demo-username")}
	if err := st.AddUser(ctx, user, viper.GetString("demo-password")); err != nil {
		return err
	}
	if err := st.LinkClientUser(ctx, clientID, user.ID); err != nil {
		return err
	}

	logger.Infow("Seeded demo credentials",
		"client_id", clientID, "username", user.Username)
	return nil
}

// whoamiHandler reports the identity behind the presented bearer token.
func whoamiHandler(w http.ResponseWriter, r *http.Request) {
	token := oauth2.TokenFromContext(r.Context())
	if token == nil {
		http.Error(w, "no token in context", http.StatusInternalServerError)
		return
	}

	body := map[string]any{
		"client_id":  token.Client.ID,
		"scope":      token.Scope,
		"expires_at": token.AccessTokenExpiresAt,
	}
	if u, ok := token.User.(*storage.User); ok {
		body["user_id"] = u.ID
		body["username"] = u.Username
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to write response: %v", err)
	}
}

// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the oauth2served demo authorization
// server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tokenforge/oauth2server/cmd/oauth2served/app"
	"github.com/tokenforge/oauth2server/pkg/logger"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}

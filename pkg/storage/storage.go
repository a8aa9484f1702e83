// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides reference model implementations backed by memory,
// Redis and SQLite. Each backend implements the full capability set of
// pkg/oauth2/model; hosts with their own persistence implement the model
// interfaces directly and ignore this package.
//
// Client secrets and user passwords are stored as bcrypt hashes. bcrypt's
// comparison is constant-time over the hash, which discharges the model
// obligation to avoid timing side channels on secret comparison.
package storage

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// User is the resource-owner identity the reference backends store. Models
// are free to use any user representation; the pipelines only pass it
// through.
type User struct {
	// ID is the stable user identifier.
	ID string `json:"id"`

	// Username is the login name used by the password grant.
	Username string `json:"username"`
}

// HashSecret returns the bcrypt hash of a client secret or user password.
func HashSecret(secret string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

// CheckSecret reports whether secret matches the bcrypt hash.
func CheckSecret(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// ScopeAllows reports whether the granted scope covers every
// space-delimited entry of the required scope.
func ScopeAllows(granted, required string) bool {
	have := map[string]struct{}{}
	for _, s := range strings.Fields(granted) {
		have[s] = struct{}{}
	}
	for _, s := range strings.Fields(required) {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

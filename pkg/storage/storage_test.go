// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckSecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", string(hash))

	assert.True(t, CheckSecret(hash, "s3cret"))
	assert.False(t, CheckSecret(hash, "wrong"))
	assert.False(t, CheckSecret(nil, "s3cret"))
}

func TestScopeAllows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		granted  string
		required string
		want     bool
	}{
		{"exact match", "read", "read", true},
		{"subset", "read write admin", "read write", true},
		{"superset required", "read", "read write", false},
		{"empty required", "read", "", true},
		{"empty granted", "", "read", false},
		{"both empty", "", "", true},
		{"order independent", "write read", "read write", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ScopeAllows(tt.granted, tt.required))
		})
	}
}

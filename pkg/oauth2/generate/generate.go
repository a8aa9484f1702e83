// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package generate produces token values. The default generator returns
// cryptographically random opaque strings; the JWT generator in this package
// is an optional model extension producing signed tokens instead.
package generate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// opaqueTokenBytes is the entropy of an opaque token (256 bits).
const opaqueTokenBytes = 32

// Opaque returns a cryptographically random opaque token value. The result
// is lowercase hex, 64 characters, and valid VSCHAR.
func Opaque() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

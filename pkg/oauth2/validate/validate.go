// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package validate implements the syntactic predicates over the RFC 6749
// Appendix A character classes. The predicates are pure functions; they never
// interpret the value, only its character set. All of them reject the empty
// string, matching the one-or-more repetition the grammar uses for parameter
// values.
package validate

import "net/url"

// IsVSChar reports whether s consists only of VSCHAR (%x20-7E) characters.
func IsVSChar(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// IsNChar reports whether s consists only of NCHAR characters:
// "-" / "." / "_" / ALPHA / DIGIT.
func IsNChar(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == '-' || r == '.' || r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// IsNQChar reports whether s consists only of NQCHAR characters:
// %x21 / %x23-5B / %x5D-7E (VSCHAR minus space, double quote and backslash).
func IsNQChar(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x21:
		case r >= 0x23 && r <= 0x5b:
		case r >= 0x5d && r <= 0x7e:
		default:
			return false
		}
	}
	return true
}

// IsNQSChar reports whether s consists only of NQSCHAR characters, which is
// NQCHAR plus the space character. Scope strings use this class.
func IsNQSChar(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x20 || r == 0x21:
		case r >= 0x23 && r <= 0x5b:
		case r >= 0x5d && r <= 0x7e:
		default:
			return false
		}
	}
	return true
}

// IsUnicodeNoCRLF reports whether s consists only of UNICODECHARNOCRLF
// characters: %x09 / %x20-7E / %x80-D7FF / %xE000-FFFD / %x10000-10FFFF.
// Usernames and passwords use this class.
func IsUnicodeNoCRLF(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x09:
		case r >= 0x20 && r <= 0x7e:
		case r >= 0x80 && r <= 0xd7ff:
		case r >= 0xe000 && r <= 0xfffd:
		case r >= 0x10000 && r <= 0x10ffff:
		default:
			return false
		}
	}
	return true
}

// IsURI reports whether s is an absolute URI with a scheme, suitable for use
// as a redirect URI or an extension grant name.
func IsURI(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

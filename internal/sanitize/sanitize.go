// Package sanitize normalizes caller-supplied session identifiers.
//
// Session IDs name history files on disk and article-cache collections, so
// they must be safe as both: lowercase alphanumeric plus underscore, at
// most 64 characters, never empty.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength bounds sanitized identifiers.
	MaxIdentifierLength = 64

	// hashSuffixLength is "_" plus an 8-char hash on truncated identifiers.
	hashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"
)

// Identifier sanitizes a string for use as a session identifier:
// lowercased, invalid characters replaced by underscores, runs collapsed,
// truncated with a hash suffix when too long. Never returns an empty
// string.
func Identifier(s string) string {
	if s == "" {
		return DefaultIdentifier
	}

	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.Trim(out, "_")

	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}

// truncateWithHash shortens s to MaxIdentifierLength while keeping distinct
// long inputs distinct via a hash suffix.
func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]

	truncated := strings.TrimRight(s[:MaxIdentifierLength-hashSuffixLength], "_")
	return truncated + suffix
}

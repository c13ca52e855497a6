// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package security holds the in-memory wrapper used for environment secrets
// and the helpers that generate and fingerprint them.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Redacted is what a Secret prints as.
const Redacted = "[SECRET]"

// GeneratedSize is the number of random bytes behind a generated value.
const GeneratedSize = 32

// Secret is a thin wrapper around a byte slice holding a sensitive value
// (API keys, signing keys). It redacts itself under fmt, JSON and text
// encoding so a secret never ends up in logs or the deployment record.
type Secret []byte

// String redacts the secret for fmt.Print* convenience.
func (s Secret) String() string { return Redacted }

// Format implements fmt.Formatter to ensure `%v`, `%#v` and friends are redacted.
func (s Secret) Format(f fmt.State, c rune) {
	_, _ = io.WriteString(f, Redacted)
}

// MarshalJSON redacts secrets in JSON marshaling.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(Redacted) }

// MarshalText redacts secrets for text encoding.
func (s Secret) MarshalText() ([]byte, error) { return []byte(Redacted), nil }

// Reveal returns the plain value. Only the process environment handed to a
// launched service should ever see it.
func (s Secret) Reveal() string { return string(s) }

// Empty reports whether the secret holds no value.
func (s Secret) Empty() bool { return len(s) == 0 }

// Zero overwrites the underlying byte slice with zeros.
func (s *Secret) Zero() {
	if s == nil || *s == nil {
		return
	}
	for i := range *s {
		(*s)[i] = 0
	}
}

// Fingerprint returns the first 12 hex chars of the blake2b-256 digest.
// It identifies a value in audit records without revealing it.
func (s Secret) Fingerprint() string {
	sum := blake2b.Sum256(s)
	return hex.EncodeToString(sum[:])[:12]
}

// FromString wraps a plain string.
func FromString(in string) Secret { return Secret([]byte(in)) }

// Generate returns a fresh URL-safe value backed by GeneratedSize random bytes.
func Generate() (Secret, error) {
	return generateFrom(rand.Reader)
}

func generateFrom(r io.Reader) (Secret, error) {
	buf := make([]byte, GeneratedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	out := make([]byte, base64.RawURLEncoding.EncodedLen(len(buf)))
	base64.RawURLEncoding.Encode(out, buf)
	for i := range buf {
		buf[i] = 0
	}
	return Secret(out), nil
}

// Package sharecode generates human-readable share codes and the
// one-way fingerprints used to look them up without revealing them.
package sharecode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the set of characters a generated code is built from.
// Uppercase letters prone to visual confusion (I, O) and the digits
// 0 and 1 are excluded.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// GroupLen is the length of each code group.
	GroupLen = 4
	// Separator joins the two code groups.
	Separator = '-'
)

// DefaultMaxAttempts bounds the uniqueness retry loop. The code space is
// large enough that a persistent collision streak indicates a broken
// lookup service rather than exhaustion.
const DefaultMaxAttempts = 10

// ErrNoUniqueCode is returned when no unregistered code was found within
// the attempt budget.
var ErrNoUniqueCode = errors.New("sharecode: no unique code found")

// Code is a human-facing share code, e.g. "K7MR-P2XW". It is the primary
// decryption key material and must never be persisted server-side.
type Code string

func (c Code) String() string {
	return string(c)
}

// Normalized returns the canonical form of the code used for
// fingerprinting and key derivation.
func (c Code) Normalized() string {
	return Normalize(string(c))
}

// Generate produces a random code of the fixed two-group shape from
// Alphabet, sourced from crypto/rand.
func Generate() (Code, error) {
	raw := make([]byte, GroupLen*2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	// len(Alphabet) is 32, which divides 256 evenly, so a plain modulo
	// introduces no bias.
	var b strings.Builder
	b.Grow(GroupLen*2 + 1)
	for i, r := range raw {
		if i == GroupLen {
			b.WriteByte(Separator)
		}
		b.WriteByte(Alphabet[int(r)%len(Alphabet)])
	}
	return Code(b.String()), nil
}

// Normalize uppercases the input and strips every rune outside Alphabet,
// separators and whitespace included. Fingerprinting and key derivation
// both operate on the normalized form, so "abc-123" and "ABC 123" refer
// to the same drop.
func Normalize(s string) string {
	upper := strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if strings.ContainsRune(Alphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup answers whether a fingerprint is already registered remotely.
// It is a read-only existence check.
type Lookup interface {
	Exists(ctx context.Context, fp Fingerprint) (bool, error)
}

// EnsureUnique generates codes until one is found whose fingerprint is
// not yet registered with the lookup. It returns ErrNoUniqueCode after
// maxAttempts collisions; a non-positive maxAttempts selects
// DefaultMaxAttempts. Lookup errors abort immediately.
func EnsureUnique(ctx context.Context, lookup Lookup, maxAttempts int) (Code, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := Generate()
		if err != nil {
			return "", err
		}

		taken, err := lookup.Exists(ctx, FingerprintOf(string(code)))
		if err != nil {
			return "", fmt.Errorf("uniqueness check: %w", err)
		}
		if !taken {
			return code, nil
		}
	}

	return "", ErrNoUniqueCode
}

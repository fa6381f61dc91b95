// Package auth guards the API with one shared secret and issues short-lived
// relay tickets.
//
// WHY BCRYPT FOR A SHARED SECRET?
// The configured secret is hashed once at startup and the plaintext is
// dropped. A presented secret is checked with bcrypt.CompareHashAndPassword,
// which compares in constant time, so response timing leaks nothing about
// how much of a guess was right.
//
// bcrypt is deliberately slow, so it runs once per distinct accepted secret.
// After the first success the SHA-256 of that secret is remembered and later
// requests compare digests with subtle.ConstantTimeCompare. Wrong guesses
// still pay the full bcrypt cost; RequireSecret's FailureGuard bounds how
// often one client can make them.
//
// API_SECRET may also be given as a bcrypt hash ($2a$/$2b$/$2y$ prefix); the
// plaintext then never appears in the environment at all.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used when hashing a plaintext secret.
// It is the same cost a login flow would use; the accepted-digest cache keeps
// it off the hot path.
const defaultCost = bcrypt.DefaultCost

// SecretVerifier checks presented secrets against the configured one.
type SecretVerifier struct {
	hash []byte

	// accepted is the SHA-256 of the last secret bcrypt accepted.
	accepted atomic.Pointer[[sha256.Size]byte]
}

// NewSecretVerifier hashes secret with the default cost. A secret that is
// already a bcrypt hash is used as is.
func NewSecretVerifier(secret string) (*SecretVerifier, error) {
	return NewSecretVerifierWithCost(secret, defaultCost)
}

// NewSecretVerifierWithCost is NewSecretVerifier with an explicit cost. Tests
// use bcrypt.MinCost (4) to keep hashing in the millisecond range.
func NewSecretVerifierWithCost(secret string, cost int) (*SecretVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: API secret must not be empty")
	}
	if isBcryptHash(secret) {
		if _, err := bcrypt.Cost([]byte(secret)); err != nil {
			return nil, fmt.Errorf("auth: API secret looks like a bcrypt hash but is not valid: %w", err)
		}
		return &SecretVerifier{hash: []byte(secret)}, nil
	}
	if len(secret) > 72 {
		// bcrypt silently truncates past 72 bytes.
		return nil, errors.New("auth: API secret must be 72 bytes or fewer")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hashing API secret: %w", err)
	}
	return &SecretVerifier{hash: hash}, nil
}

// Verify returns nil when presented matches the configured secret.
func (v *SecretVerifier) Verify(presented string) error {
	if presented == "" {
		return errors.New("auth: no secret presented")
	}
	if len(presented) > 72 {
		return errors.New("auth: invalid secret")
	}

	digest := sha256.Sum256([]byte(presented))
	if known := v.accepted.Load(); known != nil && subtle.ConstantTimeCompare(known[:], digest[:]) == 1 {
		return nil
	}

	err := bcrypt.CompareHashAndPassword(v.hash, []byte(presented))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errors.New("auth: invalid secret")
		}
		return fmt.Errorf("auth: comparing secret hash: %w", err)
	}
	v.accepted.Store(&digest)
	return nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

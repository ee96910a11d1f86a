package credential

import (
	"errors"
	"time"
)

// Expected validation outcomes. Not-found and expired stay distinct for
// observability; the HTTP boundary collapses both into one generic
// "invalid" response so callers cannot tell which occurred.
var (
	ErrNotFound      = errors.New("credential not found")
	ErrExpired       = errors.New("credential expired")
	ErrInvalidFormat = errors.New("credential has invalid format")

	ErrEmptyPrincipal  = errors.New("principal cannot be empty")
	ErrInvalidLifetime = errors.New("lifetime must be positive")
)

// Record is a stored credential. The raw secret is never kept; only its
// one-way hash. Records are never physically deleted: a revoked or
// expired record stays for audit with Active false, and Active never
// returns to true.
type Record struct {
	// ID is the opaque unique identifier assigned at issuance.
	ID string `json:"id"`

	// SecretHash is the one-way hash of the raw secret.
	SecretHash string `json:"secret_hash"`

	// Principal is the identity the credential is bound to.
	Principal string `json:"principal"`

	// IssuedAt and ExpiresAt bound the credential's life. ExpiresAt is
	// fixed at issuance and never extended.
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Active is false after revocation or first expiry detection.
	Active bool `json:"active"`

	// LastUsedAt and UseCount track successful validations. UseCount is
	// monotonically non-decreasing.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UseCount   int64      `json:"use_count"`
}

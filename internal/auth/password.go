// Package auth provides the credential primitives for admin accounts:
// password hashing and signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultHashCost is the bcrypt work factor used for new hashes.
const DefaultHashCost = bcrypt.DefaultCost

// maxPasswordBytes is the longest input bcrypt will consume without truncation.
const maxPasswordBytes = 72

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// PasswordHasher hashes and verifies admin passwords.
type PasswordHasher interface {
	// Hash returns a salted one-way hash of password. The salt is embedded in the result.
	Hash(ctx context.Context, password string) (string, error)

	// Verify reports whether password matches hash.
	// Returns (false, nil) on mismatch and an error only for a malformed hash.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BcryptHasher implements PasswordHasher with bcrypt.
// Concurrent hash computations are capped so CPU-bound work cannot
// monopolize the process under a burst of logins.
type BcryptHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewBcryptHasher creates a hasher with the given cost. A cost of zero selects DefaultHashCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = DefaultHashCost
	}
	return &BcryptHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks password against a bcrypt hash.
func (h *BcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

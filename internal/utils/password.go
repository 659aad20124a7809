package utils // password hashing helpers built on bcrypt

import (
	"errors" // error wrapping and matching

	"golang.org/x/crypto/bcrypt" // bcrypt password hashing
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PasswordHasher binds a cost factor to the bcrypt helpers so callers can
// hold it as a dependency.
type PasswordHasher struct {
	Cost int
}

// NewPasswordHasher returns a hasher with the given cost, falling back to
// DefaultBcryptCost when cost is outside bcrypt's accepted range.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return PasswordHasher{Cost: cost}
}

// Hash rejects empty and over-long input before handing it to bcrypt.
func (h PasswordHasher) Hash(plain string) (string, error) {
	if plain == "" { // nothing to hash
		return "", errors.New("empty password")
	}
	if len(plain) > MaxPasswordBytes { // bcrypt would fail with ErrPasswordTooLong
		return "", bcrypt.ErrPasswordTooLong
	}
	return HashPassword(plain, h.Cost) // delegate to the cost-aware helper
}

// Verify reports whether plain matches hash.
func (h PasswordHasher) Verify(plain, hash string) bool {
	return VerifyPassword(hash, plain) // argument order follows bcrypt
}

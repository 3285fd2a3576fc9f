package identity

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies passwords with bcrypt and an optional pepper.
type PasswordHasher struct {
	Cost   int
	Pepper string
}

func (h PasswordHasher) peppered(pw string) []byte {
	if h.Pepper != "" {
		return []byte(pw + h.Pepper)
	}
	return []byte(pw)
}

// Hash returns the bcrypt hash of pw.
func (h PasswordHasher) Hash(pw string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword(h.peppered(pw), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether pw matches storedHash.
func (h PasswordHasher) Verify(pw, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), h.peppered(pw)) == nil
}

// Package password hashes operator passwords with bcrypt.
package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hash returns the bcrypt hash of password at cost. A cost outside the
// bcrypt range uses the default.
func Hash(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify checks whether password matches the stored hash.
func Verify(password, encoded string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	return err == nil
}

// IsHash reports whether value already looks like a bcrypt hash.
func IsHash(value string) bool {
	if !strings.HasPrefix(value, "$2") {
		return false
	}
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}

// Package utils provides internal utility functions.
package utils

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPasswordBcrypt hashes a password using bcrypt.
func HashPasswordBcrypt(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash failed: %w", err)
	}
	return string(hash), nil
}

// IsBcryptHash reports whether s looks like a bcrypt hash ($2a$, $2b$, $2y$).
func IsBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2") && len(s) == 60
}

// CheckPassword compares password against expected, which is either a
// bcrypt hash or a plain secret.
func CheckPassword(expected, password string) bool {
	if IsBcryptHash(expected) {
		return bcrypt.CompareHashAndPassword([]byte(expected), []byte(password)) == nil
	}
	return expected == password
}

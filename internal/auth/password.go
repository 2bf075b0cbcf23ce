package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasherConfig configures password hashing and validation.
type PasswordHasherConfig struct {
	MinLength int
	Cost      int
}

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	minLength int
	cost      int
}

// NewPasswordHasher creates a hasher with the default bcrypt cost.
func NewPasswordHasher() *PasswordHasher {
	return NewPasswordHasherWithConfig(PasswordHasherConfig{MinLength: 8, Cost: bcrypt.DefaultCost})
}

// NewPasswordHasherWithConfig creates a hasher with explicit settings.
func NewPasswordHasherWithConfig(cfg PasswordHasherConfig) *PasswordHasher {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 8
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		cfg.Cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{minLength: cfg.MinLength, cost: cfg.Cost}
}

// ValidatePassword checks password policy before hashing.
func (h *PasswordHasher) ValidatePassword(password string) error {
	if len(password) < h.minLength {
		return fmt.Errorf("password must be at least %d characters", h.minLength)
	}
	// bcrypt truncates beyond 72 bytes; reject instead of silently truncating
	if len(password) > 72 {
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// HashPassword returns the bcrypt hash of password.
func (h *PasswordHasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches hash.
func (h *PasswordHasher) ComparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// RandomUnusablePassword returns the hash of a long random secret for
// accounts provisioned through a social provider. The plaintext is
// discarded, so the password can never be used to log in.
func (h *PasswordHasher) RandomUnusablePassword() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return h.HashPassword(base64.RawURLEncoding.EncodeToString(buf))
}

// ValidateEmail checks that address parses as a bare RFC 5322 address.
func ValidateEmail(address string) error {
	if address == "" {
		return errors.New("email is required")
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return errors.New("email address is not valid")
	}
	// Reject display-name forms like "Alice <alice@example.com>"
	if parsed.Address != address {
		return errors.New("email address is not valid")
	}
	return nil
}

// ValidateUsername checks the allowed username shape.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 64 {
		return errors.New("username must be between 3 and 64 characters")
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '.' && r != '_' && r != '-' {
			return errors.New("username may only contain letters, digits, '.', '_' and '-'")
		}
	}
	if strings.HasPrefix(username, ".") || strings.HasSuffix(username, ".") {
		return errors.New("username may not start or end with '.'")
	}
	return nil
}

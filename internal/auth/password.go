package auth

import (
	"golang.org/x/crypto/bcrypt"
)

const defaultPasswordMinLength = 8

// PasswordConfig tunes bcrypt hashing; zero values fall back to defaults.
type PasswordConfig struct {
	Cost      int
	MinLength int
}

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string, cfg *PasswordConfig) (string, error) {
	minLen := defaultPasswordMinLength
	cost := bcrypt.DefaultCost
	if cfg != nil {
		if cfg.MinLength > 0 {
			minLen = cfg.MinLength
		}
		if cfg.Cost > 0 {
			cost = cfg.Cost
		}
	}
	if len(plain) < minLen {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword returns nil when plain matches hash.
func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

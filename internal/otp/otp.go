// Package otp issues and checks the one-time codes used to confirm item hand-off.
//
// A code is six decimal digits in [100000, 999999]. Only its bcrypt hash is
// ever persisted; the plaintext is handed to the buyer once.
package otp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Length is the number of digits in a code.
	Length = 6

	// TTL is how long a code stays valid after it is issued.
	TTL = 30 * time.Minute

	// MaxAttempts is the number of wrong guesses allowed per code.
	MaxAttempts = 3

	minCode = 100000
	maxCode = 999999
)

// Cost is the bcrypt cost used when hashing codes.
var Cost = bcrypt.DefaultCost

// ErrInvalidFormat is returned for a candidate that is not exactly six ASCII digits.
var ErrInvalidFormat = errors.New("OTP must be exactly 6 digits")

// Generate returns a uniformly random code.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+minCode), nil
}

// Hash returns the salted bcrypt hash of a code.
func Hash(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), Cost)
	if err != nil {
		return "", fmt.Errorf("hashing otp: %w", err)
	}
	return string(h), nil
}

// Issue generates a fresh code and its hash.
func Issue() (code, hash string, err error) {
	code, err = Generate()
	if err != nil {
		return "", "", err
	}
	hash, err = Hash(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

// Matches reports whether candidate is the code behind hash.
func Matches(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// ValidFormat reports whether s is exactly six ASCII digits.
func ValidFormat(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NewTransactionID returns a 16 character uppercase hex reference for an order.
func NewTransactionID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating transaction id: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// ExpiresAt returns the expiry of a code issued at t.
func ExpiresAt(t time.Time) time.Time {
	return t.Add(TTL)
}

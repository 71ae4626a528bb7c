package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// User is a marketplace member. Every user can both buy and sell.
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Age           int        `json:"age"`
	ContactNumber string     `json:"contactNumber"`
	PasswordHash  string     `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// FullName returns the user's first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Profile is the public view of a seller.
type Profile struct {
	ID            int64   `json:"id"`
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email"`
	ContactNumber string  `json:"contactNumber"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

// Account field bounds.
const (
	MinPasswordLength = 6
	MinNameLength     = 2
	MinAge            = 16
	MaxAge            = 100
	ContactDigits     = 10
)

// Validation errors for account fields.
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrEmailDomain      = errors.New("email must belong to an institutional domain")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrNameTooShort     = errors.New("first and last name must be at least 2 characters")
	ErrInvalidAge       = errors.New("age must be between 16 and 100")
	ErrInvalidContact   = errors.New("contact number must be exactly 10 digits")
)

// NormalizeEmail parses an address, checks that it belongs to one of the
// allowed domains and returns it lowercased.
func NormalizeEmail(email string, domains []string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}

	normalized := strings.ToLower(addr.Address)
	at := strings.LastIndexByte(normalized, '@')
	if at < 1 {
		return "", ErrInvalidEmail
	}
	host := normalized[at+1:]

	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return normalized, nil
		}
	}
	return "", ErrEmailDomain
}

// ValidatePassword checks the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidateProfile checks the editable account fields.
func ValidateProfile(firstName, lastName string, age int, contactNumber string) error {
	if len(strings.TrimSpace(firstName)) < MinNameLength || len(strings.TrimSpace(lastName)) < MinNameLength {
		return ErrNameTooShort
	}
	if age < MinAge || age > MaxAge {
		return ErrInvalidAge
	}
	if len(contactNumber) != ContactDigits {
		return ErrInvalidContact
	}
	for _, c := range contactNumber {
		if c < '0' || c > '9' {
			return ErrInvalidContact
		}
	}
	return nil
}

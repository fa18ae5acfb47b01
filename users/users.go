package users

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

var (
	ErrEmailRequired     = errors.New("email is required")
	ErrEmailInvalid      = errors.New("email is not a valid address")
	ErrPasswordsMismatch = errors.New("password and confirmation do not match")
	ErrNameRequired      = errors.New("first and last name are required")
)

// Profile is the caller's account as returned by GET /api/user/@me.
type Profile struct {
	ID                   string   `json:"id,omitempty"`
	Email                string   `json:"email,omitempty"`
	EmailConfirmed       bool     `json:"emailConfirmed"`
	PhoneNumber          string   `json:"phoneNumber,omitempty"`
	PhoneNumberConfirmed bool     `json:"phoneNumberConfirmed"`
	FirstName            string   `json:"firstName,omitempty"`
	LastName             string   `json:"lastName,omitempty"`
	Title                string   `json:"title,omitempty"`
	CompanyName          string   `json:"companyName,omitempty"`
	Photo                string   `json:"photo,omitempty"`
	Roles                []string `json:"roles,omitempty"`
}

// ProfileUpdate is the body of PUT /api/user/@me.
type ProfileUpdate struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Title       string `json:"title,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Photo       string `json:"photo,omitempty"`
}

// Registration is what a new user fills in before an account is created.
type Registration struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Title           string
	CompanyName     string
	Photo           string
}

// Validate runs the checks that can be made before calling the server.
func (r Registration) Validate() error {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %q", ErrEmailInvalid, email)
	}
	if err := ValidatePasswordStrength(r.Password); err != nil {
		return err
	}
	if r.Password != r.ConfirmPassword {
		return ErrPasswordsMismatch
	}
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return ErrNameRequired
	}
	return nil
}

// ProfileUpdate returns the profile fields of the registration.
func (r Registration) ProfileUpdate() ProfileUpdate {
	return ProfileUpdate{
		FirstName:   strings.TrimSpace(r.FirstName),
		LastName:    strings.TrimSpace(r.LastName),
		Title:       r.Title,
		CompanyName: r.CompanyName,
		Photo:       r.Photo,
	}
}

// ValidatePasswordStrength checks if password meets the identity server's defaults:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
// - Contains at least one symbol
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		default:
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("password must contain at least one uppercase letter")
	case !hasLower:
		return fmt.Errorf("password must contain at least one lowercase letter")
	case !hasNumber:
		return fmt.Errorf("password must contain at least one number")
	case !hasSymbol:
		return fmt.Errorf("password must contain at least one symbol")
	}
	return nil
}

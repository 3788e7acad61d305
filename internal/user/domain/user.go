package domain

import (
	"errors"
	"time"
)

// User is the account a passkey or master secret belongs to.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary is the public view of a user returned after authentication.
type Summary struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

// Summary returns the public view of u.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

// Label is the name shown to authenticators: the display name, or the email when unset.
func (u *User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

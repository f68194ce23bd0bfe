package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrEmptyUserID   = errors.New("user ID cannot be empty")
	ErrNegativeDebit = errors.New("debit amount cannot be negative")
)

// User is the principal that owns generation jobs and pays for them in credits.
type User struct {
	ID          uuid.UUID `json:"id"`
	Credits     int       `json:"credits"`
	DeviceToken string    `json:"-"` // push registration token, never exposed
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUser creates a User with the given starting credit balance.
func NewUser(credits int, deviceToken string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:          uuid.New(),
		Credits:     credits,
		DeviceToken: deviceToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	return nil
}

// CanAfford reports whether the user holds at least cost credits.
func (u *User) CanAfford(cost int) bool {
	return u.Credits >= cost
}

// HasDeviceToken reports whether push notifications can be delivered to the user.
func (u *User) HasDeviceToken() bool {
	return u.DeviceToken != ""
}

package domain

import "time"

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

// User is the slice of the account record the credential flows need.
type User struct {
	ID              string
	Email           string
	PasswordHash    string // argon2 encoded
	Status          UserStatus
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

package domain

import "context"

// User is the account record kept by the external document store.
// PasswordHash is either a raw bcrypt hash or a base64-wrapped one
// written by the previous storage format.
type User struct {
	Username     string `json:"username" bson:"username"`
	Email        string `json:"email" bson:"email"`
	PasswordHash string `json:"-" bson:"permanent_token"`
}

// UserStore defines the data-access contract for user accounts.
// Implementations live in internal/core/repository (Core layer).
// The logic layer depends on this interface only, never on SQL or drivers directly.
type UserStore interface {
	// FindUser returns the user whose username or email equals nameOrEmail.
	// Returns (nil, nil) when no user is found.
	FindUser(ctx context.Context, nameOrEmail string) (*User, error)

	// InsertUser creates a new account.
	// Returns an error wrapping ErrUserExists when the username or email is taken.
	InsertUser(ctx context.Context, username, passwordHash, email string) error
}

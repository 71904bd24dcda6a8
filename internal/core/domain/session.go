package domain

import "time"

// Session binds a bearer token to an authenticated identity.
type Session struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Token        string    `json:"token"`
	IssuedAt     time.Time `json:"issued_at"`
	RequestCount int       `json:"request_count"`
}

// VerificationCode is a one-time code mailed to an address during registration.
type VerificationCode struct {
	Email    string    `json:"email"`
	Code     string    `json:"-"`
	IssuedAt time.Time `json:"issued_at"`
}

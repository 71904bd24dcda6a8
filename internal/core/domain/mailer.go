package domain

import "context"

// Mailer delivers plain-text mail. Implementations live in internal/core/mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LoginRequest is the JSON body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the JSON body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Code     string `json:"vcode" binding:"required"`
}

// VerifyCodeRequest is the JSON body of POST /auth/verify-code.
type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"vcode" binding:"required"`
}

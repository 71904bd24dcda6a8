package domain

import "errors"

// Kind classifies every failure the auth core can report.
// The set is closed: callers switch over it exhaustively.
type Kind uint8

const (
	// KindInternal covers storage, collaborator and runtime faults.
	// HTTP Status: 500 Internal Server Error
	KindInternal Kind = iota
	// HTTP Status: 401 Unauthorized
	KindWrongPassword
	// HTTP Status: 401 Unauthorized
	KindNotLogin
	// HTTP Status: 401 Unauthorized
	KindExpired
	// HTTP Status: 429 Too Many Requests
	KindTooFrequent
	// HTTP Status: 400 Bad Request
	KindNotSUSTech
	// HTTP Status: 400 Bad Request
	KindNotStudent
	// HTTP Status: 400 Bad Request
	KindCodeInvalid
	// HTTP Status: 429 Too Many Requests
	KindTooMany
	// HTTP Status: 409 Conflict
	KindUserExists
)

var kindNames = [...]string{
	KindInternal:      "internal",
	KindWrongPassword: "wrong_password",
	KindNotLogin:      "not_login",
	KindExpired:       "expired",
	KindTooFrequent:   "too_frequent",
	KindNotSUSTech:    "not_sustech",
	KindNotStudent:    "not_student",
	KindCodeInvalid:   "code_invalid",
	KindTooMany:       "too_many",
	KindUserExists:    "user_exists",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a typed auth failure. Only the sentinels below are ever created,
// so errors.Is on them works by identity.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Sentinel errors. Wrap them with fmt.Errorf("%w") to add the operation name.
var (
	ErrInternal      = &Error{Kind: KindInternal, msg: "internal server error"}
	ErrWrongPassword = &Error{Kind: KindWrongPassword, msg: "wrong username or password"}
	ErrNotLogin      = &Error{Kind: KindNotLogin, msg: "not logged in"}
	ErrExpired       = &Error{Kind: KindExpired, msg: "session expired, please login again"}
	ErrTooFrequent   = &Error{Kind: KindTooFrequent, msg: "too many requests, please slow down"}
	ErrNotSUSTech    = &Error{Kind: KindNotSUSTech, msg: "not SUSTech email"}
	ErrNotStudent    = &Error{Kind: KindNotStudent, msg: "not student if you want to register please contact us"}
	ErrCodeInvalid   = &Error{Kind: KindCodeInvalid, msg: "invalid verification code"}
	ErrTooMany       = &Error{Kind: KindTooMany, msg: "too many request for link, please wait 60 seconds"}
	ErrUserExists    = &Error{Kind: KindUserExists, msg: "username or email already exists"}
)

// KindOf reports the kind of err. Anything that does not wrap an *Error,
// including collaborator failures, is KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the *Error that may be shown to a client for err.
// Internal details never leak: unclassified errors become ErrInternal.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

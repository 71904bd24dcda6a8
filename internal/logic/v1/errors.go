// Package v1 provides authentication business logic for API version 1.
//
// Error Handling:
// Every failure returned from this package wraps one of the sentinel errors in
// internal/core/domain, or is a collaborator error that classifies as
// domain.KindInternal. Handlers pick the HTTP status with StatusCode and show
// only domain.Public(err) to the client.
//
// Error Checking (in handlers):
//
//	switch domain.KindOf(err) {
//	case domain.KindWrongPassword, domain.KindNotLogin, domain.KindExpired:
//	    // 401
//	case domain.KindInternal:
//	    // 500, details are logged, never returned
//	}
package v1

import (
	"net/http"

	"github.com/duynhne/flow-auth/internal/core/domain"
)

// StatusCode maps an error returned by AuthService to an HTTP status.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch domain.KindOf(err) {
	case domain.KindWrongPassword, domain.KindNotLogin, domain.KindExpired:
		return http.StatusUnauthorized
	case domain.KindTooFrequent, domain.KindTooMany:
		return http.StatusTooManyRequests
	case domain.KindNotSUSTech, domain.KindNotStudent, domain.KindCodeInvalid:
		return http.StatusBadRequest
	case domain.KindUserExists:
		return http.StatusConflict
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Package credential checks presented passwords against stored bcrypt hashes.
//
// Two storage formats are in circulation: the current one keeps the raw
// bcrypt hash, the legacy one stored it base64-encoded (sometimes with
// line-wrapping newlines). Verify accepts both so older accounts keep working.
package credential

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for new hashes.
const DefaultCost = 12

// Verifier hashes and verifies passwords.
type Verifier struct {
	cost int
}

// NewVerifier creates a Verifier producing hashes with the given bcrypt cost.
// Out-of-range costs fall back to DefaultCost.
func NewVerifier(cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Verifier{cost: cost}
}

// Verify reports whether presented matches stored. It never fails: decode
// and comparison errors simply mean "no match".
func (v *Verifier) Verify(stored, presented string) bool {
	if decoded, ok := decodeLegacy(stored); ok {
		if bcrypt.CompareHashAndPassword(decoded, []byte(presented)) == nil {
			return true
		}
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
}

// Hash returns a raw bcrypt hash of password.
func (v *Verifier) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func decodeLegacy(stored string) ([]byte, bool) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(stored)
	if cleaned == "" {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, false
	}
	return b, true
}

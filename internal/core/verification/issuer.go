// Package verification issues one-time email codes that gate registration.
package verification

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/core/ephemeral"
)

// Defaults for Issuer.
const (
	DefaultExpire    = 30 * time.Minute
	DefaultRetry     = 60 * time.Second
	DefaultSignupURL = "https://sustechflow.top/signup"

	mailSubject     = "Flow 注册链接"
	studentIDLength = 8
)

// acceptedDomains are the institutional suffixes following the student ID.
var acceptedDomains = []string{
	"@mail.sustech.edu.cn",
	"@sustech.edu.cn",
	"@mail.sustc.edu.cn",
	"@sustc.edu.cn",
}

// Issuer keeps at most one outstanding code per address.
type Issuer struct {
	codes     *ephemeral.Store[domain.VerificationCode]
	mailer    domain.Mailer
	expire    time.Duration
	retry     time.Duration
	signupURL string
	now       func() time.Time
	newCode   func() string
	logger    zerolog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithExpire sets how long a code stays valid.
func WithExpire(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.expire = d
		}
	}
}

// WithRetry sets the per-address cooldown between two requests.
func WithRetry(d time.Duration) Option {
	return func(i *Issuer) {
		if d >= 0 {
			i.retry = d
		}
	}
}

// WithSignupURL sets the page the mailed link points to.
func WithSignupURL(u string) Option {
	return func(i *Issuer) {
		if u != "" {
			i.signupURL = u
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

// NewIssuer creates an Issuer that delivers codes through mailer.
func NewIssuer(mailer domain.Mailer, opts ...Option) *Issuer {
	i := &Issuer{
		mailer:    mailer,
		expire:    DefaultExpire,
		retry:     DefaultRetry,
		signupURL: DefaultSignupURL,
		now:       time.Now,
		newCode:   func() string { return uuid.NewString() },
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.codes = ephemeral.New[domain.VerificationCode](ephemeral.WithClock(i.now))
	return i
}

// ValidateAddress checks that candidate is an 8-digit student ID followed by
// one of the accepted university domains. It does not check deliverability.
func ValidateAddress(candidate string) (string, error) {
	if len(candidate) < studentIDLength {
		return "", domain.ErrNotStudent
	}
	for _, c := range []byte(candidate[:studentIDLength]) {
		if c < '0' || c > '9' {
			return "", domain.ErrNotStudent
		}
	}
	rest := candidate[studentIDLength:]
	for _, d := range acceptedDomains {
		if rest == d {
			return candidate, nil
		}
	}
	return "", domain.ErrNotSUSTech
}

// RequestCode issues a fresh code for address and mails the signup link.
// A second request within the retry cooldown fails with ErrTooMany. If the
// mail cannot be sent the new code is withdrawn so the user may retry at once.
func (i *Issuer) RequestCode(ctx context.Context, address string) (domain.VerificationCode, error) {
	address, err := ValidateAddress(address)
	if err != nil {
		return domain.VerificationCode{}, fmt.Errorf("request code: %w", err)
	}

	var (
		entry   domain.VerificationCode
		tooSoon bool
	)
	err = i.codes.Update(address, func(e *ephemeral.Entry[domain.VerificationCode]) (domain.VerificationCode, ephemeral.Decision) {
		now := i.now()
		if e != nil {
			age := now.Sub(e.Value.IssuedAt)
			if age < i.expire && age < i.retry {
				tooSoon = true
				return domain.VerificationCode{}, ephemeral.Keep
			}
		}
		entry = domain.VerificationCode{Email: address, Code: i.newCode(), IssuedAt: now}
		return entry, ephemeral.Replace
	})
	if err != nil {
		return domain.VerificationCode{}, fmt.Errorf("request code: %w", err)
	}
	if tooSoon {
		i.logger.Debug().Str("email", address).Msg("Verification code requested during cooldown")
		return domain.VerificationCode{}, fmt.Errorf("request code: %w", domain.ErrTooMany)
	}

	// Mail goes out after the lock is released.
	if err := i.mailer.Send(ctx, address, mailSubject, i.link(entry.Code)); err != nil {
		i.withdraw(address, entry.Code)
		return domain.VerificationCode{}, fmt.Errorf("request code: send mail to %s: %w", address, err)
	}

	return entry, nil
}

// ValidateCode reports whether code is the live code for address. An expired
// entry is dropped as a side effect. A valid code stays usable until it
// expires or is consumed.
func (i *Issuer) ValidateCode(address, code string) error {
	return i.check(address, code, false)
}

// Consume validates code like ValidateCode and removes it on success.
func (i *Issuer) Consume(address, code string) error {
	return i.check(address, code, true)
}

func (i *Issuer) check(address, code string, consume bool) error {
	valid := false
	err := i.codes.Update(address, func(e *ephemeral.Entry[domain.VerificationCode]) (domain.VerificationCode, ephemeral.Decision) {
		if e == nil {
			return domain.VerificationCode{}, ephemeral.Keep
		}
		if i.now().Sub(e.Value.IssuedAt) >= i.expire {
			return domain.VerificationCode{}, ephemeral.Delete
		}
		if subtle.ConstantTimeCompare([]byte(e.Value.Code), []byte(code)) != 1 {
			return domain.VerificationCode{}, ephemeral.Keep
		}
		valid = true
		if consume {
			return domain.VerificationCode{}, ephemeral.Delete
		}
		return domain.VerificationCode{}, ephemeral.Keep
	})
	if err != nil {
		return fmt.Errorf("validate code: %w", err)
	}
	if !valid {
		return fmt.Errorf("validate code for %s: %w", address, domain.ErrCodeInvalid)
	}
	return nil
}

// withdraw drops the entry for address if it still holds code.
func (i *Issuer) withdraw(address, code string) {
	err := i.codes.Update(address, func(e *ephemeral.Entry[domain.VerificationCode]) (domain.VerificationCode, ephemeral.Decision) {
		if e != nil && e.Value.Code == code {
			return domain.VerificationCode{}, ephemeral.Delete
		}
		return domain.VerificationCode{}, ephemeral.Keep
	})
	if err != nil {
		i.logger.Error().Err(err).Str("email", address).Msg("Failed to withdraw verification code")
	}
}

func (i *Issuer) link(code string) string {
	sep := "?"
	if strings.Contains(i.signupURL, "?") {
		sep = "&"
	}
	return i.signupURL + sep + "vcode=" + url.QueryEscape(code)
}

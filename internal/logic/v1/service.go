package v1

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/core/verification"
	"github.com/duynhne/flow-auth/internal/logging"
	"github.com/duynhne/flow-auth/middleware"
)

// SessionManager issues and checks bearer sessions.
type SessionManager interface {
	Login(ctx context.Context, username, password string) (domain.Session, error)
	Authenticate(token string) (domain.Session, error)
	Logout(token string) (domain.Session, error)
	Len() int
}

// CodeIssuer issues and checks registration codes.
type CodeIssuer interface {
	RequestCode(ctx context.Context, address string) (domain.VerificationCode, error)
	ValidateCode(address, code string) error
	Consume(address, code string) error
}

// PasswordHasher produces hashes for new accounts.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// AuthService implements authentication business rules.
// It depends on interfaces injected via the constructor and
// MUST NOT access the database or mail transport directly.
type AuthService struct {
	users    domain.UserStore
	sessions SessionManager
	codes    CodeIssuer
	hasher   PasswordHasher
}

// NewAuthService creates a new AuthService.
func NewAuthService(users domain.UserStore, sessions SessionManager, codes CodeIssuer, hasher PasswordHasher) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		codes:    codes,
		hasher:   hasher,
	}
}

// Login opens a session for the given credentials.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	sess, err := s.sessions.Login(ctx, req.Username, req.Password)
	s.observe(ctx, span, "login", err)
	if err != nil {
		return domain.Session{}, err
	}

	span.AddEvent("user.authenticated")
	return sess, nil
}

// Logout revokes the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) (domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.logout", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	sess, err := s.sessions.Logout(token)
	s.observe(ctx, span, "logout", err)
	if err != nil {
		return domain.Session{}, err
	}

	span.SetAttributes(attribute.String("username", sess.Username))
	return sess, nil
}

// Authenticate validates token and charges one request against its owner's quota.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.authenticate", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	sess, err := s.sessions.Authenticate(token)
	s.observe(ctx, span, "authenticate", err)
	if err != nil {
		return domain.Session{}, err
	}

	span.SetAttributes(
		attribute.String("username", sess.Username),
		attribute.Int("session.request_count", sess.RequestCount),
	)
	return sess, nil
}

// RequestCode mails a registration link to address.
func (s *AuthService) RequestCode(ctx context.Context, address string) (domain.VerificationCode, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.request_code", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("email", address),
	))
	defer span.End()

	entry, err := s.codes.RequestCode(ctx, address)
	s.observe(ctx, span, "request_code", err)
	if err != nil {
		return domain.VerificationCode{}, err
	}
	return entry, nil
}

// ValidateCode checks a registration code without using it up.
func (s *AuthService) ValidateCode(ctx context.Context, req domain.VerifyCodeRequest) error {
	ctx, span := middleware.StartSpan(ctx, "auth.validate_code", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("email", req.Email),
	))
	defer span.End()

	err := s.codes.ValidateCode(req.Email, req.Code)
	s.observe(ctx, span, "validate_code", err)
	return err
}

// Register creates an account from a valid code and logs it in.
// The code is consumed only once the account exists, so a failed insert
// leaves it usable for another attempt.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (sess domain.Session, err error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
		attribute.String("email", req.Email),
	))
	defer span.End()
	defer func() { s.observe(ctx, span, "register", err) }()

	if _, err := verification.ValidateAddress(req.Email); err != nil {
		return domain.Session{}, fmt.Errorf("register %q: %w", req.Username, err)
	}
	if err := s.codes.ValidateCode(req.Email, req.Code); err != nil {
		return domain.Session{}, fmt.Errorf("register %q: %w", req.Username, err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("register %q: %w", req.Username, err)
	}

	if err := s.users.InsertUser(ctx, req.Username, hash, req.Email); err != nil {
		return domain.Session{}, fmt.Errorf("register %q: insert user: %w", req.Username, err)
	}
	span.AddEvent("user.registered")

	// A concurrent registration may have raced us to the code; the account
	// exists either way, so this is logged rather than returned.
	if err := s.codes.Consume(req.Email, req.Code); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("email", req.Email).Msg("Verification code already gone after registration")
	}

	sess, err = s.sessions.Login(ctx, req.Username, req.Password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("register %q: %w", req.Username, err)
	}
	return sess, nil
}

// observe records the outcome of op on the span, in metrics, and for
// internal failures, in the log with full detail.
func (s *AuthService) observe(ctx context.Context, span trace.Span, op string, err error) {
	activeSessions.Set(float64(s.sessions.Len()))

	if err == nil {
		authOperations.WithLabelValues(op, "ok").Inc()
		span.SetAttributes(attribute.Bool("auth.success", true))
		return
	}

	kind := domain.KindOf(err)
	authOperations.WithLabelValues(op, kind.String()).Inc()
	span.SetAttributes(
		attribute.Bool("auth.success", false),
		attribute.String("auth.error_kind", kind.String()),
	)

	if kind == domain.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		logging.FromContext(ctx).Error().Err(err).Str("operation", op).Msg("Auth operation failed")
	}
}

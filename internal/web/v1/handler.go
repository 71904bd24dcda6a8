package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/logging"
	logicv1 "github.com/duynhne/flow-auth/internal/logic/v1"
	"github.com/duynhne/flow-auth/middleware"
)

// SessionKey is the gin context key under which RequireSession stores the
// authenticated domain.Session.
const SessionKey = "session"

const bearerPrefix = "Bearer "

var errMissingBearer = errors.New("authorization header must be \"Bearer <token>\"")

// Handler groups HTTP handlers for the auth API v1.
type Handler struct {
	auth *logicv1.AuthService
}

// NewHandler creates a new Handler with the given AuthService.
func NewHandler(auth *logicv1.AuthService) *Handler {
	return &Handler{auth: auth}
}

// RegisterRoutes registers all auth API v1 routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/login", h.Login)
	auth.POST("/logout", h.Logout)
	auth.GET("/me", h.RequireSession(), h.GetMe)
	auth.GET("/register-link", h.RegisterLink)
	auth.POST("/register", h.Register)
	auth.POST("/verify-code", h.VerifyCode)
}

type envelope struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
	Meta  meta    `json:"meta"`
}

type meta struct {
	TraceID string `json:"trace_id,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{
		Data: data,
		Meta: meta{TraceID: c.GetString(middleware.TraceIDKey)},
	})
}

// fail writes the public form of err. Internal details never reach the body.
func fail(c *gin.Context, err error) {
	pub := domain.Public(err)
	msg := pub.Error()
	c.AbortWithStatusJSON(logicv1.StatusCode(err), envelope{
		Error: &msg,
		Meta: meta{
			TraceID: c.GetString(middleware.TraceIDKey),
			Kind:    pub.Kind.String(),
		},
	})
}

func badRequest(c *gin.Context, err error) {
	msg := err.Error()
	c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
		Error: &msg,
		Meta: meta{
			TraceID: c.GetString(middleware.TraceIDKey),
			Kind:    "invalid_request",
		},
	})
}

// startSpan opens the web-layer span and makes it the request's context.
func (h *Handler) startSpan(c *gin.Context) trace.Span {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
	c.Request = c.Request.WithContext(ctx)
	return span
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", errMissingBearer
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), nil
}

// RequireSession authenticates the bearer token, charging one request to its
// owner, and stores the session under SessionKey.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			fail(c, domain.ErrNotLogin)
			return
		}

		sess, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			logging.FromContext(c.Request.Context()).Debug().Err(err).Msg("Bearer rejected")
			fail(c, err)
			return
		}

		c.Set(SessionKey, sess)
		c.Next()
	}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	span := h.startSpan(c)
	defer span.End()
	ctx := c.Request.Context()

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		badRequest(c, err)
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	sess, err := h.auth.Login(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Info().Err(err).Str("username", req.Username).Msg("Login failed")
		fail(c, err)
		return
	}

	logging.FromContext(ctx).Info().Str("username", sess.Username).Msg("Login successful")
	respond(c, http.StatusOK, sess)
}

// Logout handles POST /auth/logout. It does not count against the quota.
func (h *Handler) Logout(c *gin.Context) {
	span := h.startSpan(c)
	defer span.End()

	token, err := bearerToken(c)
	if err != nil {
		fail(c, domain.ErrNotLogin)
		return
	}

	sess, err := h.auth.Logout(c.Request.Context(), token)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, sess)
}

// GetMe handles GET /auth/me behind RequireSession.
func (h *Handler) GetMe(c *gin.Context) {
	sess, ok := c.Get(SessionKey)
	if !ok {
		fail(c, domain.ErrNotLogin)
		return
	}
	respond(c, http.StatusOK, sess)
}

// RegisterLink handles GET /auth/register-link?email=.
// The code only ever travels by mail.
func (h *Handler) RegisterLink(c *gin.Context) {
	span := h.startSpan(c)
	defer span.End()

	address := c.Query("email")
	if address == "" {
		badRequest(c, errors.New("email query parameter is required"))
		return
	}

	entry, err := h.auth.RequestCode(c.Request.Context(), address)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"email": entry.Email})
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	span := h.startSpan(c)
	defer span.End()
	ctx := c.Request.Context()

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		badRequest(c, err)
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	sess, err := h.auth.Register(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Info().
			Err(err).
			Str("username", req.Username).
			Msg("Registration failed")
		fail(c, err)
		return
	}

	logging.FromContext(ctx).Info().Str("username", sess.Username).Msg("Registration successful")
	respond(c, http.StatusCreated, sess)
}

// VerifyCode handles POST /auth/verify-code.
func (h *Handler) VerifyCode(c *gin.Context) {
	span := h.startSpan(c)
	defer span.End()

	var req domain.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.auth.ValidateCode(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"valid": true})
}

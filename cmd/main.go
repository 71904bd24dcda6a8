package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/flow-auth/config"
	database "github.com/duynhne/flow-auth/internal/core"
	"github.com/duynhne/flow-auth/internal/core/credential"
	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/core/mail"
	"github.com/duynhne/flow-auth/internal/core/ratelimit"
	"github.com/duynhne/flow-auth/internal/core/session"
	"github.com/duynhne/flow-auth/internal/core/verification"
	"github.com/duynhne/flow-auth/internal/logging"
	logicv1 "github.com/duynhne/flow-auth/internal/logic/v1"
	v1 "github.com/duynhne/flow-auth/internal/web/v1"
	"github.com/duynhne/flow-auth/middleware"
)

// App owns every long-lived component of the service.
type App struct {
	store   *database.Store
	janitor *ratelimit.Janitor
	handler *v1.Handler
}

// NewApp opens storage and wires the auth core. The rate counter reset task
// starts here and stops in Close.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := database.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	log.Info().Str("backend", store.Backend).Msg("User store connected")

	mailer, err := newMailer(cfg.Mail)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	limiter := ratelimit.New(
		ratelimit.WithLimit(cfg.Auth.APILimit),
		ratelimit.WithWindow(cfg.Auth.RateWindow),
		ratelimit.WithLogger(log.With().Str("component", "ratelimit").Logger()),
	)
	verifier := credential.NewVerifier(cfg.Auth.BcryptCost)
	sessions := session.NewManager(store.Users, verifier, limiter,
		session.WithLifetime(cfg.Auth.SessionLifetime),
		session.WithLogger(log.With().Str("component", "session").Logger()),
	)
	codes := verification.NewIssuer(mailer,
		verification.WithExpire(cfg.Auth.CodeExpire),
		verification.WithRetry(cfg.Auth.CodeRetry),
		verification.WithSignupURL(cfg.Auth.SignupURL),
		verification.WithLogger(log.With().Str("component", "verification").Logger()),
	)

	auth := logicv1.NewAuthService(store.Users, sessions, codes, verifier)

	return &App{
		store:   store,
		janitor: limiter.Start(context.Background()),
		handler: v1.NewHandler(auth),
	}, nil
}

// Close stops the reset task and releases storage.
func (a *App) Close(ctx context.Context) error {
	a.janitor.Stop()
	return a.store.Close(ctx)
}

func newMailer(cfg config.MailConfig) (domain.Mailer, error) {
	switch cfg.Provider {
	case config.MailPostmark:
		m, err := mail.NewPostmarkMailer(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.Sender)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.MailLog:
		log.Warn().Msg("MAIL_PROVIDER=log: registration links are written to the log")
		return mail.NewLogMailer(log.With().Str("component", "mail").Logger()), nil
	}
	return nil, fmt.Errorf("%w: unknown MAIL_PROVIDER %q", config.ErrInvalidConfig, cfg.Provider)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Configuration load failed: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	app, err := NewApp(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start auth core")
	}

	if cfg.Service.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	var isShuttingDown atomic.Bool

	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		if err := app.store.Ping(c.Request.Context()); err != nil {
			logging.FromContext(c.Request.Context()).Warn().Err(err).Msg("Readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage_unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	app.handler.RegisterRoutes(r.Group("/api/v1"))

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting auth service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	isShuttingDown.Store(true)
	if drainDelay := cfg.GetReadinessDrainDelayDuration(); drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Stop accepting requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Stop the counter reset task and close storage
	if err := app.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Storage close error")
	} else {
		log.Info().Msg("Auth core stopped")
	}

	// 3. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}

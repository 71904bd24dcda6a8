// Package database opens the user store selected by configuration.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/duynhne/flow-auth/config"
	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/core/repository"
)

var (
	ErrConnect        = errors.New("failed to connect to database")
	ErrHealthcheck    = errors.New("database healthcheck failed")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Store is an open user store plus the hooks main needs around it.
type Store struct {
	Users   domain.UserStore
	Backend string

	ping  func(context.Context) error
	close func(context.Context) error
}

// Ping checks connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ping(ctx); err != nil {
		return errors.Join(ErrHealthcheck, err)
	}
	return nil
}

// Close releases the underlying connections.
func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}

// Open connects to the configured backend, retrying transient failures.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Store{
			Users:   repository.NewUserRepository(pool),
			Backend: cfg.Backend,
			ping:    pool.Ping,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case config.BackendMongo:
		client, err := ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		if err := repository.EnsureUserIndexes(ctx, coll); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		return &Store{
			Users:   repository.NewMongoUserRepository(coll),
			Backend: cfg.Backend,
			ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			close: client.Disconnect,
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

// Connect opens a pgx pool and pings it. Attempt i waits i times the retry
// interval before the next one.
func Connect(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	var lastErr error
	for i := range attempts(cfg) {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		pool, err := pgxpool.NewWithConfig(attemptCtx, poolCfg)
		if err == nil {
			if err = pool.Ping(attemptCtx); err == nil {
				cancel()
				return pool, nil
			}
			pool.Close()
		}
		cancel()
		lastErr = err

		log.Warn().Err(err).Int("attempt", i+1).Msg("Postgres connection failed")
		if err := wait(ctx, time.Duration(i+1)*cfg.RetryInterval); err != nil {
			return nil, errors.Join(ErrConnect, err)
		}
	}

	return nil, errors.Join(ErrConnect, lastErr)
}

// ConnectMongo creates a mongo client and pings the primary.
func ConnectMongo(ctx context.Context, cfg config.StorageConfig) (*mongo.Client, error) {
	var lastErr error
	for i := range attempts(cfg) {
		client, err := mongo.Connect(options.Client().
			ApplyURI(cfg.MongoURL).
			SetConnectTimeout(cfg.ConnectTimeout))
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		log.Warn().Err(err).Int("attempt", i+1).Msg("MongoDB connection failed")
		if err := wait(ctx, time.Duration(i+1)*cfg.RetryInterval); err != nil {
			return nil, errors.Join(ErrConnect, err)
		}
	}

	return nil, errors.Join(ErrConnect, lastErr)
}

func attempts(cfg config.StorageConfig) int {
	return max(cfg.RetryAttempts, 1)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duynhne/flow-auth/internal/core/domain"
)

// pgxPool is the subset of *pgxpool.Pool used by the repository.
type pgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgxUserRepository implements domain.UserStore using pgxpool.
type PgxUserRepository struct {
	pool pgxPool
}

// NewUserRepository creates a new PgxUserRepository.
func NewUserRepository(pool pgxPool) *PgxUserRepository {
	return &PgxUserRepository{pool: pool}
}

// FindUser returns the user whose username or email matches nameOrEmail.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) FindUser(ctx context.Context, nameOrEmail string) (*domain.User, error) {
	query := `SELECT username, email, password_hash FROM users WHERE username = $1 OR email = $1 LIMIT 1`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, nameOrEmail).Scan(&u.Username, &u.Email, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &u, nil
}

// InsertUser inserts a new user. A unique violation on username or email
// is reported as domain.ErrUserExists.
func (r *PgxUserRepository) InsertUser(ctx context.Context, username, passwordHash, email string) error {
	query := `INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)`

	_, err := r.pool.Exec(ctx, query, username, email, passwordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("insert user %q: %w", username, domain.ErrUserExists)
		}
		return err
	}

	return nil
}

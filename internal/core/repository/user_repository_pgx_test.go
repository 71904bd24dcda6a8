package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/flow-auth/internal/core/domain"
)

var (
	findUserSQL   = regexp.QuoteMeta(`SELECT username, email, password_hash FROM users WHERE username = $1 OR email = $1 LIMIT 1`)
	insertUserSQL = regexp.QuoteMeta(`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)`)
)

func TestPgxUserRepository_FindUser(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      *domain.User
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"username", "email", "password_hash"}).
					AddRow("alice", "11712009@mail.sustech.edu.cn", "$2a$12$hash")
				mock.ExpectQuery(findUserSQL).WithArgs("alice").WillReturnRows(rows)
			},
			want: &domain.User{Username: "alice", Email: "11712009@mail.sustech.edu.cn", PasswordHash: "$2a$12$hash"},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(findUserSQL).WithArgs("alice").WillReturnError(pgx.ErrNoRows)
			},
			want: nil,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(findUserSQL).WithArgs("alice").WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewUserRepository(mock)
			got, err := repo.FindUser(context.Background(), "alice")

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "connection refused")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPgxUserRepository_InsertUser(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "inserted",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(insertUserSQL).
					WithArgs("alice", "12345678@sustech.edu.cn", "hash").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(insertUserSQL).
					WithArgs("alice", "12345678@sustech.edu.cn", "hash").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: domain.ErrUserExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewUserRepository(mock)
			err = repo.InsertUser(context.Background(), "alice", "hash", "12345678@sustech.edu.cn")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

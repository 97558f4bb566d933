package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{"id", "username", "email", "role", "password_hash", "created_at", "updated_at"}

func TestUserRepository_GetByID(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		mock     func(sqlmock.Sqlmock)
		wantUser types.User
		wantErr  error
	}{
		{
			name: "found",
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
					WithArgs(7).
					WillReturnRows(sqlmock.NewRows(userRowColumns).
						AddRow(7, "alice", "alice@example.com", "ADMIN", "hash", now, now))
			},
			wantUser: types.User{
				ID: 7, Username: "alice", Email: "alice@example.com",
				Role: types.RoleAdmin, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now,
			},
		},
		{
			name: "not found",
			mock: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
					WithArgs(7).
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.mock(mock)

			user, err := NewUserRepository(db).GetByID(context.Background(), 7)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestUserRepository_CreateDuplicateUsername(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com", types.RoleUser, "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	_, err := NewUserRepository(db).Create(context.Background(), types.User{
		Username: "alice", Email: "alice@example.com", PasswordHash: "hash",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "Username already registered", apperr.Message(err))
}

func TestUserRepository_CreateDefaultsRole(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("bob", "bob@example.com", "USER", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	user, err := NewUserRepository(db).Create(context.Background(), types.User{
		Username: "bob", Email: "bob@example.com", PasswordHash: "hash",
	})

	require.NoError(t, err)
	assert.Equal(t, 3, user.ID)
	assert.Equal(t, types.RoleUser, user.Role)
}

func TestUserRepository_UsernameTakenExcludesSelf(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE username = \$1 AND id <> \$2\)`).
		WithArgs("alice", 4).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	taken, err := NewUserRepository(db).UsernameTaken(context.Background(), "alice", 4)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestUserRepository_UpdateNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := NewUserRepository(db).Update(context.Background(), types.User{ID: 99, Username: "x", Email: "x@y.z", Role: types.RoleUser})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DeleteError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(5).
		WillReturnError(errors.New("connection reset"))

	err := NewUserRepository(db).Delete(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, apperr.IsInternal(err))
}

func TestUserRepository_List(t *testing.T) {
	now := time.Now()
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM users ORDER BY id OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 100).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(1, "a", "a@x.io", "USER", "h", now, now).
			AddRow(2, "b", "b@x.io", "ADMIN", "h", now, now))

	users, err := NewUserRepository(db).List(context.Background(), -5, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, types.RoleAdmin, users[1].Role)
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vevsa/books-auth/internal/common"
)

var userCols = []string{"user_public_key", "user_private_key_hash", "email", "email_status", "registered_on"}

func TestUserCreate_Success(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectExec(`INSERT INTO key_users \(user_public_key, user_private_key_hash, registered_on\)`).
		WithArgs("pkA", "$argon2id$hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), "pkA", "$argon2id$hash"))
}

func TestUserCreate_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectExec(`INSERT INTO key_users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "key_users_pkey"})

	err := repo.Create(context.Background(), "pkA", "h")
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestUserGetByPublicKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`SELECT .+ FROM key_users WHERE user_public_key = \$1`).
		WithArgs("pkA").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("pkA", "h", "a@example.com", 1, testNow))

	u, err := repo.GetByPublicKey(context.Background(), "pkA")
	require.NoError(t, err)
	assert.Equal(t, "pkA", u.PublicKey)
	require.NotNil(t, u.Email)
	assert.Equal(t, "a@example.com", *u.Email)
	assert.True(t, u.EmailVerified)
}

func TestUserGetByPublicKey_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`FROM key_users WHERE user_public_key`).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.GetByPublicKey(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUserGetByEmail_LowercasesLookup(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`FROM key_users WHERE LOWER\(email\) = \$1`).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("pkA", "h", "User@Example.com", 1, testNow))

	u, err := repo.GetByEmail(context.Background(), "User@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "pkA", u.PublicKey)
}

func TestUserGetByEmail_TrimsLookup(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`FROM key_users WHERE LOWER\(email\) = \$1`).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("pkA", "h", "user@example.com", 1, testNow))

	u, err := repo.GetByEmail(context.Background(), " user@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "pkA", u.PublicKey)
}

func TestUserEmailExists(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.EmailExists(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserEmailExists_StorageError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("db down"))

	_, err := repo.EmailExists(context.Background(), "a@example.com")
	require.ErrorIs(t, err, common.ErrStorage)
	assert.Contains(t, err.Error(), "db down")
}

func TestUserSetVerifiedEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`UPDATE key_users SET email = \$1, email_status = 1 WHERE user_public_key = \$2 RETURNING`).
		WithArgs("a@example.com", "pkA").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("pkA", "h", "a@example.com", 1, testNow))

	u, err := repo.SetVerifiedEmail(context.Background(), "pkA", "a@example.com")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestUserSetVerifiedEmail_UnknownKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`UPDATE key_users`).WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.SetVerifiedEmail(context.Background(), "nope", "a@example.com")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUserGetByPublicKey_Timeout(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db, 10*time.Millisecond)

	mock.ExpectQuery(`FROM key_users`).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("pkA", "h", nil, 0, testNow))

	_, err := repo.GetByPublicKey(context.Background(), "pkA")
	require.ErrorIs(t, err, common.ErrTimeout)
	assert.NotErrorIs(t, err, common.ErrStorage)
}

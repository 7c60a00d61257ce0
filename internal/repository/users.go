package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/database"
	"github.com/vevsa/books-auth/internal/models"
	"github.com/vevsa/books-auth/pkg/utils"
)

const userColumns = `user_public_key, user_private_key_hash, email, email_status, registered_on`

type UserRepository struct {
	base
}

func NewUserRepository(db *sql.DB, timeout time.Duration) *UserRepository {
	return &UserRepository{base: newBase(db, timeout)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.KeyUser, error) {
	var (
		u      models.KeyUser
		email  sql.NullString
		status int
	)
	if err := row.Scan(&u.PublicKey, &u.PrivateKeyHash, &email, &status, &u.RegisteredOn); err != nil {
		return nil, err
	}
	u.Email = nullableString(email)
	u.EmailVerified = status == 1
	return &u, nil
}

// Create inserts a new identity. A taken public key is ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, publicKey, privateKeyHash string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO key_users (user_public_key, user_private_key_hash, registered_on) VALUES ($1, $2, NOW())`,
		publicKey, privateKeyHash)
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return fmt.Errorf("%w: User already registered with this public key", common.ErrAlreadyExists)
		}
		return common.StorageErr(ctx, "insert key user", err)
	}
	return nil
}

func (r *UserRepository) GetByPublicKey(ctx context.Context, publicKey string) (*models.KeyUser, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM key_users WHERE user_public_key = $1`, publicKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: User not found", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.StorageErr(ctx, "select key user", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.KeyUser, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM key_users WHERE LOWER(email) = $1`, utils.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: A user does not exist with this email", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.StorageErr(ctx, "select key user by email", err)
	}
	return u, nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM key_users WHERE LOWER(email) = $1)`, utils.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, common.StorageErr(ctx, "check email", err)
	}
	return exists, nil
}

// SetVerifiedEmail attaches a verified email to the identity.
func (r *UserRepository) SetVerifiedEmail(ctx context.Context, publicKey, email string) (*models.KeyUser, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE key_users SET email = $1, email_status = 1 WHERE user_public_key = $2 RETURNING `+userColumns,
		email, publicKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: User not found", common.ErrNotFound)
	}
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: A user already exists with this email", common.ErrAlreadyExists)
		}
		return nil, common.StorageErr(ctx, "update key user email", err)
	}
	return u, nil
}

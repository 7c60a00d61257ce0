// Package repository holds the PostgreSQL access for key users, trust
// relations, recovery requests and vendors. Every exported operation is
// bounded by the repository timeout and returns errors classified with the
// kinds from internal/common.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vevsa/books-auth/internal/common"
)

const defaultTimeout = 5 * time.Second

type base struct {
	db      *sql.DB
	timeout time.Duration
}

func newBase(db *sql.DB, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return base{db: db, timeout: timeout}
}

func (b base) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// classify passes already classified errors through and turns driver errors
// into storage or timeout errors.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		common.ErrValidation, common.ErrNotFound, common.ErrDuplicateRequest,
		common.ErrAlreadyExists, common.ErrQuorumNotMet, common.ErrTimeout, common.ErrStorage,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return common.StorageErr(ctx, op, err)
}

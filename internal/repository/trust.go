package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/database"
	"github.com/vevsa/books-auth/internal/dbx"
	"github.com/vevsa/books-auth/internal/models"
)

type TrustRepository struct {
	base
}

func NewTrustRepository(db *sql.DB, timeout time.Duration) *TrustRepository {
	return &TrustRepository{base: newBase(db, timeout)}
}

// Record stores every entry in one transaction. Re-recording a trustee
// replaces its share. Any row failure rolls back the whole batch.
func (r *TrustRepository) Record(ctx context.Context, truster string, entries []models.TrustEntry) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for i, e := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO trust_relations (truster_public_key, trustee_public_key, trust_data, created_on)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (truster_public_key, trustee_public_key)
				DO UPDATE SET trust_data = EXCLUDED.trust_data, created_on = NOW()`,
				truster, e.Trustee, e.EncryptedData)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		if database.ForeignKeyViolation(err) {
			return fmt.Errorf("%w: User not found", common.ErrNotFound)
		}
		return common.StorageErr(ctx, "record trust", err)
	}
	return nil
}

func (r *TrustRepository) ListByTruster(ctx context.Context, truster string) ([]models.TrustRelation, error) {
	return r.list(ctx, "list trust by truster",
		`SELECT truster_public_key, trustee_public_key, trust_data, created_on
		 FROM trust_relations WHERE truster_public_key = $1 ORDER BY created_on`, truster)
}

func (r *TrustRepository) ListByTrustee(ctx context.Context, trustee string) ([]models.TrustRelation, error) {
	return r.list(ctx, "list trust by trustee",
		`SELECT truster_public_key, trustee_public_key, trust_data, created_on
		 FROM trust_relations WHERE trustee_public_key = $1 ORDER BY created_on`, trustee)
}

func (r *TrustRepository) list(ctx context.Context, op, query string, key string) ([]models.TrustRelation, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, common.StorageErr(ctx, op, err)
	}
	defer rows.Close()

	out := []models.TrustRelation{}
	for rows.Next() {
		var rel models.TrustRelation
		if err := rows.Scan(&rel.TrusterPublicKey, &rel.TrusteePublicKey, &rel.TrustData, &rel.CreatedOn); err != nil {
			return nil, common.StorageErr(ctx, op, err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageErr(ctx, op, err)
	}
	return out, nil
}

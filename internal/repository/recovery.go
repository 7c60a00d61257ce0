package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/database"
	"github.com/vevsa/books-auth/internal/dbx"
	"github.com/vevsa/books-auth/internal/models"
)

const (
	requestColumns = `request_id, from_public_key, new_public_key, recovery_status, logged_on, updated_on`
	// openRequestIndex allows one open request per from_public_key.
	openRequestIndex = "idx_recovery_requests_open"
)

type RecoveryRepository struct {
	base
}

func NewRecoveryRepository(db *sql.DB, timeout time.Duration) *RecoveryRepository {
	return &RecoveryRepository{base: newBase(db, timeout)}
}

func scanRequest(row rowScanner) (models.RecoveryRequest, error) {
	var req models.RecoveryRequest
	err := row.Scan(&req.RequestID, &req.FromPublicKey, &req.NewPublicKey, &req.RecoveryStatus, &req.LoggedOn, &req.UpdatedOn)
	return req, err
}

// HasOpen reports whether fromKey already has a request with status < 4.
func (r *RecoveryRepository) HasOpen(ctx context.Context, fromKey string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM recovery_requests WHERE from_public_key = $1 AND recovery_status < 4)`,
		fromKey).Scan(&exists)
	if err != nil {
		return false, common.StorageErr(ctx, "check open recovery request", err)
	}
	return exists, nil
}

// Create logs a request at status 0 and seeds one pending detail row per
// trustee, all in one transaction.
func (r *RecoveryRepository) Create(ctx context.Context, requestID, fromKey, newKey string, trustees []string) (models.RecoveryRequest, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var created models.RecoveryRequest
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		created, err = scanRequest(tx.QueryRowContext(ctx, `
			INSERT INTO recovery_requests (request_id, from_public_key, new_public_key, recovery_status, logged_on, updated_on)
			VALUES ($1, $2, $3, 0, NOW(), NOW())
			RETURNING `+requestColumns,
			requestID, fromKey, newKey))
		if err != nil {
			return err
		}
		for _, trustee := range trustees {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recovery_details (request_id, user_public_key, trust_status, logged_on) VALUES ($1, $2, 0, NOW())`,
				requestID, trustee); err != nil {
				return fmt.Errorf("seed detail for %s: %w", trustee, err)
			}
		}
		return nil
	})
	if err != nil {
		if constraint, ok := database.UniqueViolation(err); ok {
			if constraint == openRequestIndex {
				return models.RecoveryRequest{}, fmt.Errorf("%w: Request already exists from your id.", common.ErrDuplicateRequest)
			}
			return models.RecoveryRequest{}, fmt.Errorf("%w: request id collision", common.ErrAlreadyExists)
		}
		return models.RecoveryRequest{}, classify(ctx, "create recovery request", err)
	}
	return created, nil
}

// SubmitShare records a trustee's share and advances the request from
// opened to updated once no pending detail rows remain. The request row is
// locked for the whole transaction and the status change is a conditional
// update on the observed value, so concurrent submissions advance it once.
func (r *RecoveryRepository) SubmitShare(ctx context.Context, requestID, trustee, trustData string) (models.SubmitResult, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var res models.SubmitResult
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		req, err := scanRequest(tx.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM recovery_requests WHERE request_id = $1 FOR UPDATE`, requestID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: Recovery request not found", common.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !req.RecoveryStatus.IsOpen() {
			return common.Validation("Recovery request is already closed")
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE recovery_details SET trust_data = $1, trust_status = 1, submitted_on = NOW()
			WHERE request_id = $2 AND user_public_key = $3 AND trust_status = 0`,
			trustData, requestID, trustee)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: No pending share for this trustee", common.ErrNotFound)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM recovery_details WHERE request_id = $1 AND trust_status = 0`,
			requestID).Scan(&res.Pending); err != nil {
			return err
		}

		if res.Pending == 0 && req.RecoveryStatus == models.RecoveryOpened {
			err := tx.QueryRowContext(ctx, `
				UPDATE recovery_requests SET recovery_status = recovery_status + 1, updated_on = NOW()
				WHERE request_id = $1 AND recovery_status = $2
				  AND NOT EXISTS (SELECT 1 FROM recovery_details WHERE request_id = $1 AND trust_status = 0)
				RETURNING recovery_status, updated_on`,
				requestID, int(req.RecoveryStatus)).Scan(&req.RecoveryStatus, &req.UpdatedOn)
			switch {
			case err == nil:
				res.Advanced = true
			case errors.Is(err, sql.ErrNoRows):
			default:
				return err
			}
		}
		res.Request = req
		return nil
	})
	if err != nil {
		return models.SubmitResult{}, classify(ctx, "submit trustee share", err)
	}
	return res, nil
}

// Finalize closes an open request owned by fromKey. quorum is the number of
// submitted shares required; 0 requires every seeded trustee.
func (r *RecoveryRepository) Finalize(ctx context.Context, requestID, fromKey string, quorum int) (models.RecoveryRequest, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var req models.RecoveryRequest
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		req, err = scanRequest(tx.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM recovery_requests WHERE request_id = $1 AND from_public_key = $2 FOR UPDATE`,
			requestID, fromKey))
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !req.RecoveryStatus.IsOpen()) {
			return fmt.Errorf("%w: No open recovery request found", common.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var submitted, total int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FILTER (WHERE trust_status = 1), COUNT(*)
			FROM recovery_details WHERE request_id = $1`, requestID).Scan(&submitted, &total); err != nil {
			return err
		}
		required := total
		if quorum > 0 && quorum < total {
			required = quorum
		}
		if submitted < required {
			return fmt.Errorf("%w: %d of %d trustee shares submitted", common.ErrQuorumNotMet, submitted, required)
		}

		return tx.QueryRowContext(ctx, `
			UPDATE recovery_requests SET recovery_status = 4, updated_on = NOW()
			WHERE request_id = $1
			RETURNING recovery_status, updated_on`, requestID).Scan(&req.RecoveryStatus, &req.UpdatedOn)
	})
	if err != nil {
		return models.RecoveryRequest{}, classify(ctx, "finalize recovery request", err)
	}
	return req, nil
}

// PendingForTrustee lists open requests (status <= 3) still waiting on the
// trustee's share.
func (r *RecoveryRepository) PendingForTrustee(ctx context.Context, trustee string) ([]models.RecoveryRequest, error) {
	return r.listRequests(ctx, "list pending recovery requests", `
		SELECT r.request_id, r.from_public_key, r.new_public_key, r.recovery_status, r.logged_on, r.updated_on
		FROM recovery_details d
		JOIN recovery_requests r ON r.request_id = d.request_id
		WHERE d.user_public_key = $1 AND d.trust_status = 0 AND r.recovery_status <= 3
		ORDER BY r.logged_on DESC`, trustee)
}

// ListByRequester returns the requests opened from fromKey, newest first.
func (r *RecoveryRepository) ListByRequester(ctx context.Context, fromKey string) ([]models.RecoveryRequest, error) {
	return r.listRequests(ctx, "list recovery requests by requester", `
		SELECT `+requestColumns+` FROM recovery_requests
		WHERE from_public_key = $1 AND recovery_status <= 4
		ORDER BY logged_on DESC`, fromKey)
}

func (r *RecoveryRepository) listRequests(ctx context.Context, op, query, key string) ([]models.RecoveryRequest, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, common.StorageErr(ctx, op, err)
	}
	defer rows.Close()

	out := []models.RecoveryRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, common.StorageErr(ctx, op, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageErr(ctx, op, err)
	}
	return out, nil
}

func (r *RecoveryRepository) Details(ctx context.Context, requestID string) ([]models.RecoveryDetail, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT request_id, user_public_key, trust_data, trust_status, logged_on, submitted_on
		FROM recovery_details WHERE request_id = $1
		ORDER BY logged_on, user_public_key`, requestID)
	if err != nil {
		return nil, common.StorageErr(ctx, "list recovery details", err)
	}
	defer rows.Close()

	out := []models.RecoveryDetail{}
	for rows.Next() {
		var (
			d         models.RecoveryDetail
			data      sql.NullString
			submitted sql.NullTime
		)
		if err := rows.Scan(&d.RequestID, &d.PublicKey, &data, &d.TrustStatus, &d.LoggedOn, &submitted); err != nil {
			return nil, common.StorageErr(ctx, "list recovery details", err)
		}
		d.TrustData = nullableString(data)
		d.SubmittedOn = nullableTime(submitted)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageErr(ctx, "list recovery details", err)
	}
	return out, nil
}

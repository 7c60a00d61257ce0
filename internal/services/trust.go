package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
	"github.com/vevsa/books-auth/pkg/utils"
)

type trustStore interface {
	Record(ctx context.Context, truster string, entries []models.TrustEntry) error
	ListByTruster(ctx context.Context, truster string) ([]models.TrustRelation, error)
	ListByTrustee(ctx context.Context, trustee string) ([]models.TrustRelation, error)
}

// TrustService is the trust registry: which trustees hold a share for whom.
type TrustService struct {
	store trustStore
	log   *slog.Logger
}

func NewTrustService(store trustStore, log *slog.Logger) *TrustService {
	return &TrustService{store: store, log: log}
}

// RecordTrust stores every entry or none.
func (s *TrustService) RecordTrust(ctx context.Context, truster string, entries []models.TrustEntry) error {
	if err := utils.RequireKey("publicKey", truster); err != nil {
		return validationFrom(err)
	}
	if len(entries) == 0 {
		return common.Validation("trustData is required")
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Trustee) == "" || strings.TrimSpace(e.EncryptedData) == "" {
			return common.Validation("Each trust entry needs a trustee and encryptedData")
		}
		if e.Trustee == truster {
			return common.Validation("A user cannot be their own trustee")
		}
		if _, dup := seen[e.Trustee]; dup {
			return common.Validation("Duplicate trustee " + e.Trustee)
		}
		seen[e.Trustee] = struct{}{}
	}

	if err := s.store.Record(ctx, truster, entries); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "trust recorded", "public_key", truster, "trustees", len(entries))
	return nil
}

func (s *TrustService) LookupByTruster(ctx context.Context, truster string) ([]models.TrustRelation, error) {
	if err := utils.RequireKey("publicKey", truster); err != nil {
		return nil, validationFrom(err)
	}
	return s.store.ListByTruster(ctx, truster)
}

func (s *TrustService) LookupByTrustee(ctx context.Context, trustee string) ([]models.TrustRelation, error) {
	if err := utils.RequireKey("trusteePublicKey", trustee); err != nil {
		return nil, validationFrom(err)
	}
	return s.store.ListByTrustee(ctx, trustee)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
	"github.com/vevsa/books-auth/pkg/shortid"
	"github.com/vevsa/books-auth/pkg/utils"
)

type recoveryLedger interface {
	HasOpen(ctx context.Context, fromKey string) (bool, error)
	Create(ctx context.Context, requestID, fromKey, newKey string, trustees []string) (models.RecoveryRequest, error)
	SubmitShare(ctx context.Context, requestID, trustee, trustData string) (models.SubmitResult, error)
	Finalize(ctx context.Context, requestID, fromKey string, quorum int) (models.RecoveryRequest, error)
	PendingForTrustee(ctx context.Context, trustee string) ([]models.RecoveryRequest, error)
	ListByRequester(ctx context.Context, fromKey string) ([]models.RecoveryRequest, error)
	Details(ctx context.Context, requestID string) ([]models.RecoveryDetail, error)
}

type trustLookup interface {
	ListByTruster(ctx context.Context, truster string) ([]models.TrustRelation, error)
	ListByTrustee(ctx context.Context, trustee string) ([]models.TrustRelation, error)
}

type userLookup interface {
	GetByPublicKey(ctx context.Context, publicKey string) (*models.KeyUser, error)
}

// EventSink receives recovery lifecycle events. Emit must not block on
// delivery.
type EventSink interface {
	Emit(ctx context.Context, ev models.RecoveryEvent)
}

type eventHistory interface {
	ListEvents(ctx context.Context, requestID string) ([]models.RecoveryEvent, error)
}

type CoordinatorConfig struct {
	// Quorum is the number of submitted shares finalize requires; 0 means all.
	Quorum int
	// FanOut bounds concurrent detail lookups in RequesterStatus.
	FanOut int
}

// Coordinator runs the recovery workflow over the ledger and trust registry.
type Coordinator struct {
	ledger  recoveryLedger
	trust   trustLookup
	users   userLookup
	events  EventSink
	history eventHistory
	cfg     CoordinatorConfig
	log     *slog.Logger
	newID   func() (string, error)
}

func NewCoordinator(ledger recoveryLedger, trust trustLookup, users userLookup, events EventSink, history eventHistory, cfg CoordinatorConfig, log *slog.Logger) *Coordinator {
	if cfg.FanOut <= 0 {
		cfg.FanOut = 8
	}
	return &Coordinator{
		ledger:  ledger,
		trust:   trust,
		users:   users,
		events:  events,
		history: history,
		cfg:     cfg,
		log:     log,
		newID:   func() (string, error) { return shortid.New(shortid.DefaultBytes) },
	}
}

func (c *Coordinator) emit(ctx context.Context, typ models.RecoveryEventType, req models.RecoveryRequest, actor string, recipients ...string) {
	if c.events == nil {
		return
	}
	c.events.Emit(ctx, models.RecoveryEvent{
		RequestID:  req.RequestID,
		Type:       typ,
		Actor:      actor,
		Recipients: recipients,
		Status:     req.RecoveryStatus,
		Timestamp:  time.Now().UTC(),
	})
}

// Initiate opens a recovery request from fromKey to newKey. Trustees come
// from the trust registry; a non-empty narrowTo restricts them to that subset.
func (c *Coordinator) Initiate(ctx context.Context, fromKey, newKey string, narrowTo []string) (string, error) {
	if err := utils.RequireKey("fromPublicKey", fromKey); err != nil {
		return "", validationFrom(err)
	}
	if err := utils.RequireKey("newPublicKey", newKey); err != nil {
		return "", validationFrom(err)
	}
	if fromKey == newKey {
		return "", common.Validation("newPublicKey must differ from fromPublicKey")
	}

	if _, err := c.users.GetByPublicKey(ctx, fromKey); err != nil {
		return "", err
	}
	open, err := c.ledger.HasOpen(ctx, fromKey)
	if err != nil {
		return "", err
	}
	if open {
		return "", fmt.Errorf("%w: Request already exists from your id.", common.ErrDuplicateRequest)
	}

	relations, err := c.trust.ListByTruster(ctx, fromKey)
	if err != nil {
		return "", err
	}
	trustees, err := selectTrustees(relations, narrowTo)
	if err != nil {
		return "", err
	}

	requestID, err := c.newID()
	if err != nil {
		return "", fmt.Errorf("%w: generate request id: %v", common.ErrStorage, err)
	}
	req, err := c.ledger.Create(ctx, requestID, fromKey, newKey, trustees)
	if err != nil {
		return "", err
	}

	c.log.InfoContext(ctx, "recovery initiated", "request_id", req.RequestID, "from", fromKey, "trustees", len(trustees))
	c.emit(ctx, models.EventInitiated, req, fromKey, append([]string{fromKey}, trustees...)...)
	return req.RequestID, nil
}

func selectTrustees(relations []models.TrustRelation, narrowTo []string) ([]string, error) {
	if len(relations) == 0 {
		return nil, common.Validation("No trustees registered for this public key")
	}
	registered := make(map[string]struct{}, len(relations))
	all := make([]string, 0, len(relations))
	for _, r := range relations {
		registered[r.TrusteePublicKey] = struct{}{}
		all = append(all, r.TrusteePublicKey)
	}
	if len(narrowTo) == 0 {
		return all, nil
	}

	picked := make([]string, 0, len(narrowTo))
	seen := make(map[string]struct{}, len(narrowTo))
	for _, t := range narrowTo {
		t = strings.TrimSpace(t)
		if _, ok := registered[t]; !ok {
			return nil, common.Validation("Trustee " + t + " is not registered for this public key")
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		picked = append(picked, t)
	}
	return picked, nil
}

// TrusteeSubmit records a trustee's share. The request advances to updated
// inside the same transaction once no trustee is pending.
func (c *Coordinator) TrusteeSubmit(ctx context.Context, requestID, trustee, trustData string) (models.SubmitResult, error) {
	if err := utils.RequireKey("requestId", requestID); err != nil {
		return models.SubmitResult{}, validationFrom(err)
	}
	if err := utils.RequireKey("trusteePublicKey", trustee); err != nil {
		return models.SubmitResult{}, validationFrom(err)
	}
	if strings.TrimSpace(trustData) == "" {
		return models.SubmitResult{}, common.Validation("trustData is required")
	}

	res, err := c.ledger.SubmitShare(ctx, requestID, trustee, trustData)
	if err != nil {
		return models.SubmitResult{}, err
	}

	c.log.InfoContext(ctx, "trustee share submitted", "request_id", requestID, "trustee", trustee, "pending", res.Pending)
	c.emit(ctx, models.EventShareSubmitted, res.Request, trustee, res.Request.FromPublicKey)
	if res.Advanced {
		c.log.InfoContext(ctx, "recovery advanced", "request_id", requestID, "status", res.Request.RecoveryStatus)
		c.emit(ctx, models.EventAdvanced, res.Request, trustee, res.Request.FromPublicKey)
	}
	return res, nil
}

// ListPendingForTrustee returns the shares the trustee holds and the open
// requests waiting on them. Both lookups run concurrently; the first
// failure cancels the other.
func (c *Coordinator) ListPendingForTrustee(ctx context.Context, trustee string) (models.PendingForTrustee, error) {
	if err := utils.RequireKey("trusteePublicKey", trustee); err != nil {
		return models.PendingForTrustee{}, validationFrom(err)
	}

	var out models.PendingForTrustee
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rels, err := c.trust.ListByTrustee(gctx, trustee)
		out.TrustData = rels
		return err
	})
	g.Go(func() error {
		reqs, err := c.ledger.PendingForTrustee(gctx, trustee)
		out.RecoveryData = reqs
		return err
	})
	if err := g.Wait(); err != nil {
		return models.PendingForTrustee{}, err
	}

	if out.TrustData == nil {
		out.TrustData = []models.TrustRelation{}
	}
	if out.RecoveryData == nil {
		out.RecoveryData = []models.RecoveryRequest{}
	}
	return out, nil
}

// Finalize closes the request once enough trustee shares were submitted.
func (c *Coordinator) Finalize(ctx context.Context, requestID, fromKey string) (models.RecoveryRequest, error) {
	if err := utils.RequireKey("requestId", requestID); err != nil {
		return models.RecoveryRequest{}, validationFrom(err)
	}
	if err := utils.RequireKey("fromPublicKey", fromKey); err != nil {
		return models.RecoveryRequest{}, validationFrom(err)
	}

	req, err := c.ledger.Finalize(ctx, requestID, fromKey, c.cfg.Quorum)
	if err != nil {
		return models.RecoveryRequest{}, err
	}

	c.log.InfoContext(ctx, "recovery finalized", "request_id", requestID, "from", fromKey)
	c.emit(ctx, models.EventFinalized, req, fromKey, fromKey, req.NewPublicKey)
	return req, nil
}

// RequesterStatus lists the key's requests with their detail rows. Details
// are fetched concurrently; any failure fails the whole call.
func (c *Coordinator) RequesterStatus(ctx context.Context, fromKey string) ([]models.RecoveryRequestWithDetails, error) {
	if err := utils.RequireKey("publicKey", fromKey); err != nil {
		return nil, validationFrom(err)
	}

	reqs, err := c.ledger.ListByRequester(ctx, fromKey)
	if err != nil {
		return nil, err
	}

	out := make([]models.RecoveryRequestWithDetails, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.FanOut)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			details, err := c.ledger.Details(gctx, req.RequestID)
			if err != nil {
				return err
			}
			out[i] = models.RecoveryRequestWithDetails{RecoveryRequest: req, Details: details}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Events returns the audit trail of a request, oldest first.
func (c *Coordinator) Events(ctx context.Context, requestID string) ([]models.RecoveryEvent, error) {
	if err := utils.RequireKey("requestId", requestID); err != nil {
		return nil, validationFrom(err)
	}
	if c.history == nil {
		return []models.RecoveryEvent{}, nil
	}
	return c.history.ListEvents(ctx, requestID)
}

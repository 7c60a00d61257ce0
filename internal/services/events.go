package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/vevsa/books-auth/internal/metrics"
	"github.com/vevsa/books-auth/internal/models"
)

type eventPublisher interface {
	Publish(ctx context.Context, ev models.RecoveryEvent) error
}

type eventRecorder interface {
	RecordAsync(ev models.RecoveryEvent)
}

// RecoveryEvents counts each event, records it in the audit log and
// publishes it for live subscribers. Either destination may be nil.
type RecoveryEvents struct {
	audit     eventRecorder
	publisher eventPublisher
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewRecoveryEvents(audit eventRecorder, publisher eventPublisher, m *metrics.Metrics, log *slog.Logger) *RecoveryEvents {
	if m == nil {
		m = metrics.NewNop()
	}
	return &RecoveryEvents{audit: audit, publisher: publisher, metrics: m, log: log}
}

func (e *RecoveryEvents) Emit(ctx context.Context, ev models.RecoveryEvent) {
	e.metrics.RecoveryTransition.WithLabelValues(string(ev.Type)).Inc()

	if e.audit != nil {
		e.audit.RecordAsync(ev)
	}
	if e.publisher != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := e.publisher.Publish(pctx, ev); err != nil {
			e.log.WarnContext(ctx, "failed to publish recovery event", "request_id", ev.RequestID, "type", ev.Type, "error", err)
		}
	}
}

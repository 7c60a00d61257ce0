package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
)

const RecoveryEventsCollection = "recovery_events"

// AuditLog persists recovery events in MongoDB.
type AuditLog struct {
	col          *mongo.Collection
	writeTimeout time.Duration
	log          *slog.Logger
}

func NewAuditLog(col *mongo.Collection, log *slog.Logger) *AuditLog {
	return &AuditLog{col: col, writeTimeout: 5 * time.Second, log: log}
}

// EnsureIndexes creates the (request_id, timestamp) index used by ListEvents.
// Called on startup after Mongo has connected.
func (a *AuditLog) EnsureIndexes(ctx context.Context) error {
	_, err := a.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "request_id", Value: 1},
			{Key: "timestamp", Value: 1},
		},
		Options: options.Index().SetName("idx_request_timestamp"),
	})
	return err
}

func (a *AuditLog) Record(ctx context.Context, ev models.RecoveryEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if _, err := a.col.InsertOne(ctx, ev); err != nil {
		return common.StorageErr(ctx, "record recovery event", err)
	}
	return nil
}

// RecordAsync writes ev in the background; failures are logged only.
func (a *AuditLog) RecordAsync(ev models.RecoveryEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		defer cancel()
		if err := a.Record(ctx, ev); err != nil {
			a.log.Warn("audit write failed", "request_id", ev.RequestID, "type", ev.Type, "error", err)
		}
	}()
}

// ListEvents returns a request's events oldest first, capped at 500.
func (a *AuditLog) ListEvents(ctx context.Context, requestID string) ([]models.RecoveryEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(500)

	cur, err := a.col.Find(ctx, bson.M{"request_id": requestID}, opts)
	if err != nil {
		return nil, common.StorageErr(ctx, "list recovery events", err)
	}
	defer cur.Close(ctx)

	events := []models.RecoveryEvent{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, common.StorageErr(ctx, "decode recovery events", err)
	}
	return events, nil
}

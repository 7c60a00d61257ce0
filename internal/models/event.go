package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RecoveryEventType string

const (
	EventInitiated      RecoveryEventType = "initiated"
	EventShareSubmitted RecoveryEventType = "share_submitted"
	EventAdvanced       RecoveryEventType = "advanced"
	EventFinalized      RecoveryEventType = "finalized"
)

// RecoveryEvent is stored in MongoDB and pushed to connected clients.
// Recipients are the public keys that should be notified.
type RecoveryEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	RequestID  string             `bson:"request_id" json:"request_id"`
	Type       RecoveryEventType  `bson:"type" json:"type"`
	Actor      string             `bson:"actor" json:"actor"`
	Recipients []string           `bson:"recipients,omitempty" json:"recipients,omitempty"`
	Status     RecoveryStatus     `bson:"status" json:"status"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}

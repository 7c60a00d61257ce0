package database

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "books"

var Client *mongo.Client
var DB *mongo.Database

func Connect(mongoURI string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	Client = client
	DB = client.Database(MongoDatabaseName(mongoURI))

	slog.Info("connected to mongodb", "database", DB.Name())
	return nil
}

// MongoDatabaseName extracts the database path segment of a connection
// string, falling back to the service default.
func MongoDatabaseName(mongoURI string) string {
	u, err := url.Parse(mongoURI)
	if err != nil {
		return defaultMongoDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}

// MaskURI hides the password of a connection string for logging.
func MaskURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func Disconnect() error {
	if Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return Client.Disconnect(ctx)
}

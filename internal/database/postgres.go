package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/vevsa/books-auth/internal/database/migrations"
)

var PostgresDB *sql.DB

// gooseUp is replaced in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// ConnectPostgres opens the pool, pings it and applies pending migrations.
func ConnectPostgres(postgresURI string) error {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	slog.Info("connected to postgres")

	if err = RunMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return err
	}

	PostgresDB = db
	return nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return err
	}
	slog.Info("postgres migrations applied")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}

// UniqueViolation reports whether err is a Postgres unique_violation and
// returns the violated constraint name.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

// ForeignKeyViolation reports whether err is a Postgres foreign_key_violation.
func ForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

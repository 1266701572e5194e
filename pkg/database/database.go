package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const driverName = "pgx"

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ConnectAttempts bounds how many pings are tried before giving up.
	ConnectAttempts int
	ConnectInterval time.Duration
}

// NewDatabase opens a pooled postgres handle and waits until the server
// answers a ping.
func NewDatabase(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := waitForPing(ctx, db, opts.ConnectAttempts, opts.ConnectInterval); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func waitForPing(ctx context.Context, db *sql.DB, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err = db.PingContext(pingCtx)
		cancel()

		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
}

package repository

import (
	"context"
	"errors"

	"advert-service/internal/domain"
)

var (
	ErrNotFound      = errors.New("advert not found")
	ErrConflict      = errors.New("advert conflicts with an existing row")
	ErrConstraint    = errors.New("advert violates a column constraint")
	ErrSessionClosed = errors.New("session already closed")
)

// Store owns the connection pool and hands out sessions.
type Store interface {
	// InitSchema creates the advertisements table and its indexes if missing.
	InitSchema(ctx context.Context) error
	// Begin opens a session bound to one transaction.
	Begin(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	// Close releases the pool.
	Close() error
}

// Session is a unit of work over one transaction. It must not be shared
// between goroutines. Close must be called on every path; it rolls back
// unless Commit succeeded.
type Session interface {
	Get(ctx context.Context, id int64) (*domain.Advert, error)
	// Add inserts ad, or updates it when ad was loaded by Get on this session.
	// On insert the generated id and creation_date are written back into ad.
	Add(ctx context.Context, ad *domain.Advert) error
	Delete(ctx context.Context, ad *domain.Advert) error
	Commit() error
	Close() error
}

package archive

import (
	"context"
	"strings"
	"time"
)

// Record is one archived transcript line. The archive is a write-only
// side channel for offline inspection; conversation state never reads
// from it.
type Record struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

type Store interface {
	SaveTurn(ctx context.Context, record Record) error
	Close() error
}

// NewStore returns a Postgres-backed archive when a database URL is
// configured, and a no-op archive otherwise.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NoopStore{}, nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

// NoopStore discards records. Used when archiving is not configured.
type NoopStore struct{}

func (NoopStore) SaveTurn(context.Context, Record) error { return nil }
func (NoopStore) Close() error                           { return nil }

// Package store persists claim records.
package store

import (
	"context"

	"github.com/ppiankov/islamcheck/internal/model"
)

// Store is the claim cache. Lookups return (nil, nil) on a miss; failures
// wrap model.ErrStorage. Implementations are safe for concurrent use.
type Store interface {
	// LookupByQuery finds the record for exact (normalized) claim text
	LookupByQuery(ctx context.Context, query string) (*model.ClaimRecord, error)

	// LookupByID finds the record with the given short id
	LookupByID(ctx context.Context, id string) (*model.ClaimRecord, error)

	// Upsert inserts the record or replaces the row with the same id
	Upsert(ctx context.Context, record *model.ClaimRecord) error

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)

	// ListPage returns records newest first
	ListPage(ctx context.Context, limit, offset int) ([]*model.ClaimRecord, error)

	// ListRecent returns (id, timestamp) pairs newest first
	ListRecent(ctx context.Context, limit int) ([]model.ClaimStamp, error)

	Close() error
}

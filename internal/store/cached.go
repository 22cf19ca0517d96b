package store

import (
	"context"
	"time"

	"github.com/ppiankov/islamcheck/internal/cache"
	"github.com/ppiankov/islamcheck/internal/model"
)

// CachedStore serves point lookups from memory before the backing store.
// Only hits are cached; writes go through to the backing store first.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedStore wraps backing with c. ttl 0 uses the cache default.
func NewCachedStore(backing Store, c cache.Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: backing, cache: c, ttl: ttl}
}

// LookupByQuery checks memory, then the backing store
func (s *CachedStore) LookupByQuery(ctx context.Context, query string) (*model.ClaimRecord, error) {
	if rec, ok := s.cache.Get(cache.QueryKey(query)); ok {
		return rec, nil
	}
	rec, err := s.Store.LookupByQuery(ctx, query)
	if err != nil || rec == nil {
		return rec, err
	}
	s.remember(rec)
	return rec, nil
}

// LookupByID checks memory, then the backing store
func (s *CachedStore) LookupByID(ctx context.Context, id string) (*model.ClaimRecord, error) {
	if rec, ok := s.cache.Get(cache.IDKey(id)); ok {
		return rec, nil
	}
	rec, err := s.Store.LookupByID(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}
	s.remember(rec)
	return rec, nil
}

// Upsert writes through and refreshes both cache entries
func (s *CachedStore) Upsert(ctx context.Context, record *model.ClaimRecord) error {
	// a replaced row may have carried a different query under this id
	if old, err := s.Store.LookupByID(ctx, record.ID); err == nil && old != nil && old.Query != record.Query {
		s.cache.Delete(cache.QueryKey(old.Query))
	}
	if err := s.Store.Upsert(ctx, record); err != nil {
		s.cache.Delete(cache.IDKey(record.ID))
		s.cache.Delete(cache.QueryKey(record.Query))
		return err
	}
	s.remember(record)
	return nil
}

func (s *CachedStore) remember(rec *model.ClaimRecord) {
	s.cache.Set(cache.IDKey(rec.ID), rec, s.ttl)
	s.cache.Set(cache.QueryKey(rec.Query), rec, s.ttl)
}

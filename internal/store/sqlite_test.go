package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/islamcheck/internal/cache"
	"github.com/ppiankov/islamcheck/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "factcheck.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(query string, class model.Classification, ts time.Time) *model.ClaimRecord {
	return model.NewClaimRecord(query, model.Analysis{
		Answer:         "Analysis of: " + query,
		Sources:        []string{"Quran 4:3", "Tafsir al-Tabari"},
		Classification: class,
	}, ts)
}

func TestSQLiteStore_UpsertLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := record("Islam permits up to four wives", model.ClassificationDebated, base)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	byQuery, err := s.LookupByQuery(ctx, rec.Query)
	if err != nil || byQuery == nil {
		t.Fatalf("LookupByQuery: %v, %v", byQuery, err)
	}
	byID, err := s.LookupByID(ctx, rec.ID)
	if err != nil || byID == nil {
		t.Fatalf("LookupByID: %v, %v", byID, err)
	}

	for _, got := range []*model.ClaimRecord{byQuery, byID} {
		if got.ID != rec.ID || got.Query != rec.Query || got.Answer != rec.Answer {
			t.Errorf("unexpected record %+v", got)
		}
		if got.Classification != model.ClassificationDebated {
			t.Errorf("unexpected classification %q", got.Classification)
		}
		if len(got.Sources) != 2 || got.Sources[1] != "Tafsir al-Tabari" {
			t.Errorf("sources not preserved in order: %v", got.Sources)
		}
		if d := got.Timestamp.Sub(rec.Timestamp); d > time.Millisecond || d < -time.Millisecond {
			t.Errorf("timestamp drifted by %v", d)
		}
	}
}

func TestSQLiteStore_Miss(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.LookupByQuery(ctx, "never asked")
	if rec != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", rec, err)
	}
	rec, err = s.LookupByID(ctx, "00000000")
	if rec != nil || err != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", rec, err)
	}
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := record("claim", model.ClassificationFalse, base)
	second := record("claim", model.ClassificationAccurate, base.Add(25*time.Hour))
	second.Answer = "updated"

	if err := s.Upsert(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after replace, got %d", n)
	}

	got, _ := s.LookupByID(ctx, first.ID)
	if got.Answer != "updated" || got.Classification != model.ClassificationAccurate {
		t.Errorf("expected replaced record, got %+v", got)
	}
}

func TestSQLiteStore_Paging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		rec := record(fmt.Sprintf("claim number %d", i), model.ClassificationAccurate, base.Add(time.Duration(i)*time.Minute))
		if err := s.Upsert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil || n != 25 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	page, err := s.ListPage(ctx, 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 5 {
		t.Fatalf("expected 5 records on last page, got %d", len(page))
	}
	if page[0].Query != "claim number 4" || page[4].Query != "claim number 0" {
		t.Errorf("unexpected order: first=%s last=%s", page[0].Query, page[4].Query)
	}

	first, _ := s.ListPage(ctx, 10, 0)
	if first[0].Query != "claim number 24" {
		t.Errorf("expected newest first, got %s", first[0].Query)
	}

	empty, err := s.ListPage(ctx, 10, 30)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty page, got %d, %v", len(empty), err)
	}

	recent, err := s.ListRecent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 || recent[0].ID != model.ClaimID("claim number 24") {
		t.Errorf("unexpected recent list: %+v", recent)
	}
	if !recent[0].Timestamp.After(recent[1].Timestamp) {
		t.Error("recent list not ordered by timestamp descending")
	}
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- s.Upsert(ctx, record(fmt.Sprintf("concurrent %d", i%5), model.ClassificationFalse, base.Add(time.Duration(i)*time.Second)))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s.LookupByQuery(ctx, fmt.Sprintf("concurrent %d", i%5))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent operation failed: %v", err)
		}
	}

	n, _ := s.Count(ctx)
	if n != 5 {
		t.Errorf("expected 5 distinct records, got %d", n)
	}
}

func TestSQLiteStore_ClosedIsStorageError(t *testing.T) {
	s := openTestStore(t)
	_ = s.Close()

	_, err := s.Count(context.Background())
	if !errors.Is(err, model.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

// countingStore records backing-store lookups
type countingStore struct {
	Store
	lookups int
}

func (c *countingStore) LookupByID(ctx context.Context, id string) (*model.ClaimRecord, error) {
	c.lookups++
	return c.Store.LookupByID(ctx, id)
}

func (c *countingStore) LookupByQuery(ctx context.Context, q string) (*model.ClaimRecord, error) {
	c.lookups++
	return c.Store.LookupByQuery(ctx, q)
}

func TestCachedStore(t *testing.T) {
	backing := &countingStore{Store: openTestStore(t)}
	s := NewCachedStore(backing, cache.NewMemoryCache(time.Minute, time.Minute), 0)
	ctx := context.Background()

	rec := record("Jesus is a prophet in Islam", model.ClassificationAccurate, base)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	// the write checks the row it replaces
	backing.lookups = 0

	for i := 0; i < 3; i++ {
		if got, err := s.LookupByID(ctx, rec.ID); err != nil || got == nil {
			t.Fatalf("LookupByID: %v, %v", got, err)
		}
		if got, err := s.LookupByQuery(ctx, rec.Query); err != nil || got == nil {
			t.Fatalf("LookupByQuery: %v, %v", got, err)
		}
	}
	if backing.lookups != 0 {
		t.Errorf("expected lookups served from memory, backing saw %d", backing.lookups)
	}

	// misses are not cached
	for i := 0; i < 2; i++ {
		if got, _ := s.LookupByID(ctx, "zzzzzzzz"); got != nil {
			t.Fatal("expected miss")
		}
	}
	if backing.lookups != 2 {
		t.Errorf("expected 2 backing lookups for misses, got %d", backing.lookups)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count passthrough = %d, %v", n, err)
	}
}

func TestCachedStore_ReplacedQueryEvicted(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	s := NewCachedStore(openTestStore(t), mem, 0)
	ctx := context.Background()

	first := record("Wudu precedes prayer", model.ClassificationAccurate, base)
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatal(err)
	}

	// the id entry expires while the query entry is still cached
	mem.Delete(cache.IDKey(first.ID))

	second := record("Wudu is optional before prayer", model.ClassificationFalse, base.Add(time.Hour))
	second.ID = first.ID
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := s.LookupByQuery(ctx, first.Query)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected replaced query to miss, got %+v", got)
	}

	got, err = s.LookupByQuery(ctx, second.Query)
	if err != nil || got == nil || got.Classification != model.ClassificationFalse {
		t.Errorf("LookupByQuery(new) = %+v, %v", got, err)
	}
}

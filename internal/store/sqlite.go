package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ppiankov/islamcheck/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	id TEXT PRIMARY KEY,
	query TEXT UNIQUE,
	response TEXT,
	timestamp REAL
);

CREATE INDEX IF NOT EXISTS idx_cache_timestamp ON cache(timestamp);
`

// SQLiteStore keeps claim records in a single SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// OpenSQLite opens or creates the database at path, creating parent
// directories as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	inMemory := path == MemoryPath
	if dir := filepath.Dir(path); !inMemory && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", model.ErrStorage, err)
		}
	}

	// busy_timeout lets concurrent writers wait instead of failing with SQLITE_BUSY
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", model.ErrStorage, err)
	}
	if inMemory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", model.ErrStorage, err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LookupByQuery finds a record by exact claim text
func (s *SQLiteStore) LookupByQuery(ctx context.Context, query string) (*model.ClaimRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, response, timestamp FROM cache WHERE query = ?`, query)
	return scanOne(row)
}

// LookupByID finds a record by id
func (s *SQLiteStore) LookupByID(ctx context.Context, id string) (*model.ClaimRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, response, timestamp FROM cache WHERE id = ?`, id)
	return scanOne(row)
}

// Upsert inserts or replaces the record. A row holding the same query under
// a different id is replaced too, since query is unique.
func (s *SQLiteStore) Upsert(ctx context.Context, record *model.ClaimRecord) error {
	response, err := json.Marshal(record.Analysis)
	if err != nil {
		return fmt.Errorf("%w: encode response: %v", model.ErrStorage, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (id, query, response, timestamp) VALUES (?, ?, ?, ?)`,
		record.ID, record.Query, string(response), toSeconds(record.Timestamp))
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", model.ErrStorage, record.ID, err)
	}
	return nil
}

// Count returns the number of records
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", model.ErrStorage, err)
	}
	return n, nil
}

// ListPage returns up to limit records starting at offset, newest first
func (s *SQLiteStore) ListPage(ctx context.Context, limit, offset int) ([]*model.ClaimRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, response, timestamp FROM cache
		ORDER BY timestamp DESC, id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list page: %v", model.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	records := []*model.ClaimRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list page: %v", model.ErrStorage, err)
	}
	return records, nil
}

// ListRecent returns the newest limit (id, timestamp) pairs
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]model.ClaimStamp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp FROM cache
		ORDER BY timestamp DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent: %v", model.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	stamps := []model.ClaimStamp{}
	for rows.Next() {
		var (
			id string
			ts float64
		)
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", model.ErrStorage, err)
		}
		stamps = append(stamps, model.ClaimStamp{ID: id, Timestamp: fromSeconds(ts)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list recent: %v", model.ErrStorage, err)
	}
	return stamps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*model.ClaimRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func scanRecord(row scanner) (*model.ClaimRecord, error) {
	var (
		rec      model.ClaimRecord
		response string
		ts       float64
	)
	if err := row.Scan(&rec.ID, &rec.Query, &response, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan: %v", model.ErrStorage, err)
	}
	if err := json.Unmarshal([]byte(response), &rec.Analysis); err != nil {
		return nil, fmt.Errorf("%w: decode response for %s: %v", model.ErrStorage, rec.ID, err)
	}
	if rec.Sources == nil {
		rec.Sources = []string{}
	}
	rec.Timestamp = fromSeconds(ts)
	return &rec, nil
}

// Timestamps are stored as fractional seconds since the epoch
func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

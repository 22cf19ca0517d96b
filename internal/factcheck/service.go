// Package factcheck coordinates the claim cache with the upstream analyzer.
package factcheck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/search"
	"github.com/ppiankov/islamcheck/internal/store"
)

const (
	DefaultMaxClaimLength = 1000
	DefaultPerPage        = 10
	MaxPerPage            = 100
)

// Analyzer produces a validated analysis for claim text
type Analyzer interface {
	Analyze(ctx context.Context, claim string) (*model.Analysis, error)
}

// availabilityChecker is implemented by analyzers that can check their
// upstream without running an analysis
type availabilityChecker interface {
	Available(ctx context.Context) error
}

// Service answers fact-check, lookup and listing requests
type Service struct {
	store     store.Store
	analyzer  Analyzer
	index     *search.Index
	maxLength int
	now       func() time.Time
	logger    *zap.Logger
	flight    singleflight.Group
}

// Option configures a Service
type Option func(*Service)

// WithIndex keeps idx updated with every fresh record and enables Search
func WithIndex(idx *search.Index) Option {
	return func(s *Service) { s.index = idx }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxClaimLength overrides the accepted claim length in characters
func WithMaxClaimLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// NewService creates a fact-check service
func NewService(st store.Store, analyzer Analyzer, opts ...Option) *Service {
	s := &Service{
		store:     st,
		analyzer:  analyzer,
		maxLength: DefaultMaxClaimLength,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FactCheck returns the cached record for text when it is fresh, and
// otherwise analyses the claim and stores the result. A failed refresh
// leaves any stale record untouched. Concurrent misses for the same claim
// share one upstream call.
func (s *Service) FactCheck(ctx context.Context, text string) (*model.ClaimRecord, error) {
	query, err := s.validateClaim(text)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.LookupByQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.IsFresh(s.now()) {
		s.logger.Debug("cache hit", zap.String("id", cached.ID))
		return cached, nil
	}

	id := model.ClaimID(query)
	analyse := func() (any, error) {
		return s.refresh(ctx, query, cached != nil)
	}
	v, err, shared := s.flight.Do(id, analyse)
	if shared && isContextErr(err) && ctx.Err() == nil {
		// the leading request went away; this caller is still waiting
		s.logger.Debug("in-flight analysis cancelled, retrying", zap.String("id", id))
		v, err, shared = s.flight.Do(id, analyse)
	}
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("joined in-flight analysis", zap.String("id", id))
	}
	return v.(*model.ClaimRecord), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// UpstreamStatus checks the analyzer's upstream without analysing a claim.
// Analyzers that cannot be checked report nil.
func (s *Service) UpstreamStatus(ctx context.Context) error {
	checker, ok := s.analyzer.(availabilityChecker)
	if !ok {
		return nil
	}
	return checker.Available(ctx)
}

func (s *Service) refresh(ctx context.Context, query string, stale bool) (*model.ClaimRecord, error) {
	analysis, err := s.analyzer.Analyze(ctx, query)
	if err != nil {
		s.logger.Warn("analysis failed",
			zap.String("id", model.ClaimID(query)),
			zap.Bool("stale_kept", stale),
			zap.Error(err))
		return nil, err
	}

	record := model.NewClaimRecord(query, *analysis, s.now())

	// a started write completes even if the caller goes away
	if err := s.store.Upsert(context.WithoutCancel(ctx), record); err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Add(record); err != nil {
			s.logger.Warn("index update failed", zap.String("id", record.ID), zap.Error(err))
		}
	}

	s.logger.Info("claim analysed",
		zap.String("id", record.ID),
		zap.String("classification", string(record.Classification)),
		zap.Bool("refreshed", stale))
	return record, nil
}

// validateClaim trims text and enforces length and character rules
func (s *Service) validateClaim(text string) (string, error) {
	query := model.NormalizeClaim(text)
	if query == "" {
		return "", fmt.Errorf("%w: claim text is empty", model.ErrInvalidInput)
	}
	if !utf8.ValidString(query) {
		return "", fmt.Errorf("%w: claim text is not valid UTF-8", model.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(query); n > s.maxLength {
		return "", fmt.Errorf("%w: claim text is %d characters, limit is %d", model.ErrInvalidInput, n, s.maxLength)
	}
	for _, r := range query {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return "", fmt.Errorf("%w: claim text contains control character %U", model.ErrInvalidInput, r)
		}
	}
	return query, nil
}

// Claim returns the stored record for id regardless of freshness
func (s *Service) Claim(ctx context.Context, id string) (*model.ClaimRecord, error) {
	if !model.ValidClaimID(id) {
		return nil, fmt.Errorf("%w: claim id must be %d alphanumeric characters", model.ErrInvalidInput, model.ClaimIDLength)
	}
	rec, err := s.store.LookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
	}
	return rec, nil
}

// HistoryItem is the summary shown in history listings
type HistoryItem struct {
	ID             string               `json:"id"`
	Query          string               `json:"query"`
	Classification model.Classification `json:"classification"`
}

// Pagination describes a history page
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	TotalItems  int `json:"total_items"`
	TotalPages  int `json:"total_pages"`
}

// HistoryPage is one page of analysed claims, newest first
type HistoryPage struct {
	Claims     []HistoryItem `json:"claims"`
	Pagination Pagination    `json:"pagination"`
}

// History returns page (1-based) of perPage records
func (s *Service) History(ctx context.Context, page, perPage int) (*HistoryPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", model.ErrInvalidInput)
	}
	if perPage < 1 || perPage > MaxPerPage {
		return nil, fmt.Errorf("%w: per_page must be between 1 and %d", model.ErrInvalidInput, MaxPerPage)
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListPage(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{ID: r.ID, Query: r.Query, Classification: r.Classification})
	}

	return &HistoryPage{
		Claims: items,
		Pagination: Pagination{
			CurrentPage: page,
			PerPage:     perPage,
			TotalItems:  total,
			TotalPages:  totalPages(total, perPage),
		},
	}, nil
}

func totalPages(total, perPage int) int {
	return max(1, int(math.Ceil(float64(total)/float64(perPage))))
}

// Recent lists the newest claim ids for sitemap generation
func (s *Service) Recent(ctx context.Context, limit int) ([]model.ClaimStamp, error) {
	return s.store.ListRecent(ctx, limit)
}

// Search runs a full-text query over analysed claims
func (s *Service) Search(ctx context.Context, text string, classification model.Classification, limit int) ([]*search.Hit, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: search is disabled", model.ErrNotFound)
	}
	text = model.NormalizeClaim(text)
	if text == "" {
		return nil, fmt.Errorf("%w: search text is empty", model.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.index.Search(text, classification, limit)
}

// Stats summarises stored and indexed records
type Stats struct {
	Claims  int    `json:"claims"`
	Indexed uint64 `json:"indexed"`
}

// Stats reports store and index sizes
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Claims: n}
	if s.index != nil {
		if st.Indexed, err = s.index.Count(); err != nil {
			return nil, fmt.Errorf("count index: %w", err)
		}
	}
	return st, nil
}

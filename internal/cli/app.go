package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/islamcheck/internal/cache"
	"github.com/ppiankov/islamcheck/internal/factcheck"
	"github.com/ppiankov/islamcheck/internal/llm"
	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/search"
	"github.com/ppiankov/islamcheck/internal/store"
)

// app holds the wired components shared by the subcommands
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	store    store.Store
	index    *search.Index
	analyzer *llm.Analyzer
	service  *factcheck.Service
}

// newApp loads configuration and opens the store, index and analyzer
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	sqlite, err := store.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.store = sqlite
	if cfg.Cache.Enabled {
		mem := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
		a.store = store.NewCachedStore(sqlite, mem, cfg.Cache.TTL)
	}

	if cfg.Search.Enabled {
		if err := a.openIndex(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.analyzer, err = llm.NewAnalyzerFromConfig(cfg.Upstream, logger.Named("upstream"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []factcheck.Option{
		factcheck.WithLogger(logger.Named("factcheck")),
		factcheck.WithMaxClaimLength(cfg.FactCheck.MaxClaimLength),
	}
	if a.index != nil {
		opts = append(opts, factcheck.WithIndex(a.index))
	}
	a.service = factcheck.NewService(a.store, a.analyzer, opts...)

	logger.Debug("components ready",
		zap.String("db", cfg.Storage.Path),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("search", a.index != nil),
		zap.String("provider", cfg.Upstream.Provider),
		zap.String("model", cfg.Upstream.Model))

	return a, nil
}

// openIndex opens the search index and backfills it when it is empty
func (a *app) openIndex(ctx context.Context) error {
	idx, err := search.Open(a.cfg.Search.IndexPath)
	if err != nil {
		return err
	}
	a.index = idx

	docs, err := idx.Count()
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}
	if docs > 0 {
		return nil
	}
	n, err := idx.IndexFromStore(ctx, a.store)
	if err != nil {
		return fmt.Errorf("backfill index: %w", err)
	}
	if n > 0 {
		a.logger.Info("search index backfilled", zap.Int("claims", n))
	}
	return nil
}

// Close releases the index and store
func (a *app) Close() error {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

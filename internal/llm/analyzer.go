package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/worker"
	"go.uber.org/zap"
)

// Pacer delays outbound calls to a named endpoint
type Pacer interface {
	Wait(ctx context.Context, endpoint string) error
}

// Analyzer turns claim text into a validated Analysis by calling the
// upstream model with bounded retries.
type Analyzer struct {
	provider    Provider
	configErr   error
	maxAttempts int
	backoff     Backoff
	pacer       Pacer
	endpoint    string
	logger      *zap.Logger
}

// AnalyzerOption configures an Analyzer
type AnalyzerOption func(*Analyzer)

// WithBackoff overrides the delay schedule between attempts
func WithBackoff(b Backoff) AnalyzerOption {
	return func(a *Analyzer) {
		if b != nil {
			a.backoff = b
		}
	}
}

// WithMaxAttempts overrides the retry budget
func WithMaxAttempts(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithPacer makes every attempt wait on p for the given endpoint first
func WithPacer(p Pacer, endpoint string) AnalyzerOption {
	return func(a *Analyzer) {
		a.pacer = p
		a.endpoint = endpoint
	}
}

// WithLogger sets the logger for retry diagnostics
func WithLogger(l *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAnalyzer creates an analyzer over provider. A nil provider yields an
// analyzer that fails every call with model.ErrConfiguration.
func NewAnalyzer(provider Provider, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		provider:    provider,
		maxAttempts: DefaultMaxAttempts,
		backoff:     ExponentialBackoff(model.DefaultConfig().Upstream.InitialBackoff, false),
		logger:      zap.NewNop(),
	}
	if provider == nil {
		a.configErr = fmt.Errorf("%w: no upstream provider", model.ErrConfiguration)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewAnalyzerFromConfig builds the provider, pacing and retry policy from
// configuration. A missing credential does not fail construction: the
// returned analyzer reports the configuration error on each call instead.
func NewAnalyzerFromConfig(cfg model.UpstreamConfig, logger *zap.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []AnalyzerOption{
		WithLogger(logger),
		WithMaxAttempts(cfg.MaxAttempts),
		WithBackoff(ExponentialBackoff(cfg.InitialBackoff, cfg.Jitter)),
	}
	if limiter := worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst); limiter != nil {
		opts = append(opts, WithPacer(limiter, cfg.BaseURL))
	}

	provider, err := NewProvider(ConfigFromModel(cfg), logger)
	if err != nil {
		if !errors.Is(err, model.ErrConfiguration) {
			return nil, err
		}
		logger.Warn("upstream not configured, fact checks will fail", zap.Error(err))
		a := NewAnalyzer(nil, opts...)
		a.configErr = err
		return a, nil
	}

	return NewAnalyzer(provider, opts...), nil
}

// Ready reports whether the analyzer has a usable provider
func (a *Analyzer) Ready() error {
	return a.configErr
}

// Available checks that the provider is configured and reachable
func (a *Analyzer) Available(ctx context.Context) error {
	if a.configErr != nil {
		return a.configErr
	}
	if !a.provider.IsAvailable(ctx) {
		return fmt.Errorf("%w: %s is not reachable", model.ErrUpstreamUnavailable, a.provider.Name())
	}
	return nil
}

// Analyze runs up to maxAttempts request/parse cycles for claim.
// Cancellation and configuration errors end the loop at once. When every
// attempt fails the error is an *UpstreamError whose kind is
// model.ErrResponseParse if all failures were parse failures and
// model.ErrUpstreamUnavailable otherwise.
func (a *Analyzer) Analyze(ctx context.Context, claim string) (*model.Analysis, error) {
	if a.configErr != nil {
		return nil, a.configErr
	}

	prompt := BuildPrompt(claim)
	allParse := true
	var lastErr error

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := a.backoff(attempt - 1)
			a.logger.Debug("retrying upstream call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if err := sleepContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("analyze claim: %w", err)
			}
		}

		analysis, result, err := a.attempt(ctx, prompt, attempt)
		switch result {
		case attemptOK:
			return analysis, nil
		case attemptFatal:
			return nil, err
		case attemptTransport:
			allParse = false
		}
		lastErr = err
	}

	kind := model.ErrUpstreamUnavailable
	if allParse {
		kind = model.ErrResponseParse
	}
	return nil, &UpstreamError{Kind: kind, Attempts: a.maxAttempts, Err: lastErr}
}

// attempt performs one paced request and parse
func (a *Analyzer) attempt(ctx context.Context, prompt string, n int) (*model.Analysis, attemptResult, error) {
	if a.pacer != nil {
		if err := a.pacer.Wait(ctx, a.endpoint); err != nil {
			if ctx.Err() != nil {
				return nil, attemptFatal, fmt.Errorf("analyze claim: %w", ctx.Err())
			}
			return nil, attemptFatal, &UpstreamError{Kind: model.ErrUpstreamUnavailable, Attempts: n, Err: err}
		}
	}

	text, err := a.provider.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, attemptFatal, fmt.Errorf("analyze claim: %w", ctx.Err())
		}
		if errors.Is(err, model.ErrConfiguration) {
			return nil, attemptFatal, err
		}
		a.logger.Warn("upstream request failed",
			zap.String("provider", a.provider.Name()),
			zap.Int("attempt", n),
			zap.Error(err))
		return nil, attemptTransport, err
	}

	analysis, err := ParseAnalysis(text)
	if err != nil {
		a.logger.Warn("upstream response rejected",
			zap.String("provider", a.provider.Name()),
			zap.Int("attempt", n),
			zap.String("raw", text),
			zap.Error(err))
		return nil, attemptParse, err
	}

	a.logger.Info("upstream analysis accepted",
		zap.String("provider", a.provider.Name()),
		zap.Int("attempt", n),
		zap.String("classification", string(analysis.Classification)))
	return analysis, attemptOK, nil
}

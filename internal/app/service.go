// Package service wires the dividend fetcher, cache, normalizer and
// simulator into the operations exposed by the API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/mq/queue"
	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/mq/worker"
	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/polygon"
	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/repository"
	"github.com/darylmathison/dividend-stock-analysis/internal/config"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/cache"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/normalize"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/simulate"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/summary"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
	"github.com/darylmathison/dividend-stock-analysis/pkg/metrics"
)

// AnalyzeRequest asks for both reinvestment policies over a price series.
type AnalyzeRequest struct {
	Symbol string
	// Start and End bound the dividend fetch. Zero values default to the
	// first and last price dates.
	Start time.Time
	End   time.Time
	// InitialCash defaults to the configured amount when zero.
	InitialCash float64
	Prices      model.PriceSeries
	// NextSessionAlignment books dividends paid on non-trading days on the
	// next session instead of failing.
	NextSessionAlignment bool
}

// Analysis is the outcome of one AnalyzeRequest.
type Analysis struct {
	Symbol      string              `json:"symbol"`
	Start       string              `json:"start"`
	End         string              `json:"end"`
	InitialCash float64             `json:"initial_cash"`
	Frequency   string              `json:"frequency"`
	Complete    bool                `json:"complete"`
	FromCache   bool                `json:"from_cache"`
	Dividends   model.DividendTable `json:"dividends"`
	KeepTheCash []simulate.Row      `json:"keep_the_cash"`
	Snowball    []simulate.Row      `json:"snowball"`
	Summaries   []summary.Summary   `json:"summaries"`
}

// warmShutdownTimeout bounds how long Stop waits for in-flight warming jobs.
const warmShutdownTimeout = 10 * time.Second

// WarmRequest asks for a window to be loaded into the cache for each symbol.
type WarmRequest struct {
	Symbols []string
	Start   time.Time
	End     time.Time
}

// WarmReceipt lists the symbols queued for warming and why others were not.
type WarmReceipt struct {
	Queued  []string          `json:"queued"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

// Service implements the dividend analysis operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	cfg     *config.Config
	store   repository.Store
	fetcher Fetcher
	// ownsStore is set when Start opened the store; Stop closes only those.
	ownsStore bool
	cache   *cache.Cache

	// Background cache warming
	warmQueue *queue.InMemoryQueue
	warmPool  *worker.Pool
	stopWarm  context.CancelFunc

	// Configuration
	loc         *time.Location
	now         func() time.Time
	nextSession bool

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		now:    time.Now,
		logger: nil, // replaced when the service starts
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the cache store and builds the fetch pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.cfg == nil {
		s.cfg = config.New(ctx)
	}
	s.loc = s.cfg.Location()

	s.logger.Info(ctx, "starting dividend service...")

	if s.store == nil {
		store, err := openStore(ctx, s.cfg)
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}
	if s.fetcher == nil {
		s.fetcher = polygon.New(
			polygon.WithBaseURL(s.cfg.BaseURL),
			polygon.WithAPIKey(s.cfg.APIKey),
			polygon.WithPageSize(s.cfg.PageSize),
			polygon.WithTimeouts(s.cfg.ConnectTimeout(), s.cfg.ReadTimeout()),
			polygon.WithRetryPolicy(polygon.RetryPolicy{
				Wait:       s.cfg.RateLimitWait(),
				MaxRetries: s.cfg.RateLimitMaxRetries,
				Multiplier: s.cfg.RateLimitMultiplier,
			}),
			polygon.WithLogger(s.logger.Named("polygon")),
		)
	}
	c, err := cache.New(s.store,
		cache.WithTTL(s.cfg.CacheTTL()),
		cache.WithClock(s.now),
		cache.WithLogger(s.logger.Named("cache")),
	)
	if err != nil {
		return err
	}
	s.cache = c

	// Workers outlive the caller's context; Stop cancels them.
	warmCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.warmQueue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.WarmQueueSize))
	s.warmPool = worker.NewPool(s.cfg.WarmWorkers, s.warmQueue, s,
		worker.WithLogger(s.logger.Named("warm")),
	)
	s.warmPool.Start(warmCtx)
	s.stopWarm = cancel

	s.started = true
	s.logger.Info(ctx, "dividend service started",
		logger.String("cacheBackend", s.cfg.CacheBackend),
		logger.String("timezone", s.loc.String()),
		logger.Int("cacheTTLDays", s.cfg.CacheTTLDays),
	)
	return nil
}

// Stop stops the warming pool and closes the cache store if Start opened
// it. A later Start reopens the configured backend.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	pool, cancel := s.warmPool, s.stopWarm
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping dividend service...")

	// Workers call back into the service, so the lock is not held here.
	shutdownCtx, done := context.WithTimeout(ctx, warmShutdownTimeout)
	if err := pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "warming workers did not stop in time", logger.Error(err))
	}
	done()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "failed to close cache store", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}
	s.started = false
	s.logger.Info(ctx, "dividend service stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		return repository.DialRedis(ctx, cfg.RedisAddr)
	case config.BackendMemory:
		return repository.NewMemoryStore(ctx), nil
	default:
		return repository.NewBoltStore(ctx, cfg.CachePath())
	}
}

// Dividends returns the normalized dividend table of symbol between start
// and end, served from the cache when a fresh entry exists.
func (s *Service) Dividends(ctx context.Context, symbol string, start, end time.Time) (model.DividendTable, model.FetchResult, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, model.FetchResult{}, ErrNotStarted
	}

	w := model.NewFetchWindow(symbol, start, end)
	if err := w.Validate(); err != nil {
		return nil, model.FetchResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	res, err := s.cache.GetOrCompute(ctx, w, s.fetcher.Fetch)
	if err != nil {
		s.logger.Error(ctx, "dividend fetch failed", logger.String("window", w.String()), logger.Error(err))
		return nil, model.FetchResult{}, err
	}
	if !res.Complete {
		s.logger.Warn(ctx, "dividend history may be truncated",
			logger.String("window", w.String()),
			logger.Int("events", len(res.Events)),
			logger.Error(res.Cause),
		)
	}

	table, stats, err := normalize.Normalize(res.Events, w.End, s.loc)
	if err != nil {
		return nil, res, fmt.Errorf("%s: %w", w, err)
	}
	s.logger.Debug(ctx, "normalized dividends",
		logger.String("window", w.String()),
		logger.Int("kept", len(table)),
		logger.Int("special", stats.Special),
		logger.Int("afterEnd", stats.AfterEnd),
		logger.Int("unparsable", stats.Unparsable),
		logger.Bool("fromCache", res.FromCache),
	)
	return table, res, nil
}

// Analyze simulates keeping dividends as cash against reinvesting them
// over the supplied prices.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	if err := req.Prices.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	initial := req.InitialCash
	if initial == 0 {
		s.mu.RLock()
		if s.cfg != nil {
			initial = s.cfg.InitialCash
		}
		s.mu.RUnlock()
	}
	if initial <= 0 {
		return Analysis{}, fmt.Errorf("%w: initial cash must be positive", ErrInvalidRequest)
	}
	start, end := req.Start, req.End
	if start.IsZero() {
		start = req.Prices.First().Date
	}
	if end.IsZero() {
		end = req.Prices.Last().Date
	}

	table, res, err := s.Dividends(ctx, req.Symbol, start, end)
	if err != nil {
		return Analysis{}, err
	}

	opts := []simulate.Option{simulate.WithLogger(s.logger.Named("simulate"))}
	if req.NextSessionAlignment || s.nextSession {
		opts = append(opts, simulate.WithNextSessionAlignment())
	}

	keep, err := s.run(simulate.StrategyKeepTheCash, simulate.KeepTheCash, req.Prices, table, initial, opts)
	if err != nil {
		return Analysis{}, err
	}
	snow, err := s.run(simulate.StrategySnowball, simulate.Snowball, req.Prices, table, initial, opts)
	if err != nil {
		return Analysis{}, err
	}

	keepValue, cashKept := simulate.Totals(keep)
	snowValue, _ := simulate.Totals(snow)

	w := model.NewFetchWindow(req.Symbol, start, end)
	return Analysis{
		Symbol:      w.Symbol,
		Start:       model.DayKey(w.Start),
		End:         model.DayKey(w.End),
		InitialCash: initial,
		Frequency:   model.FrequencyLabel(table.Frequency()),
		Complete:    res.Complete,
		FromCache:   res.FromCache,
		Dividends:   table,
		KeepTheCash: keep,
		Snowball:    snow,
		Summaries: []summary.Summary{
			summary.New(summary.ApproachKeepTheCash, keepValue, initial, cashKept),
			summary.New(summary.ApproachSnowball, snowValue, initial, 0),
		},
	}, nil
}

type simulation func(model.PriceSeries, model.DividendTable, float64, ...simulate.Option) ([]simulate.Row, error)

func (s *Service) run(strategy string, sim simulation, prices model.PriceSeries, table model.DividendTable, initial float64, opts []simulate.Option) ([]simulate.Row, error) {
	started := time.Now()
	rows, err := sim(prices, table, initial, opts...)
	metrics.RecordSimulation(strategy, float64(time.Since(started).Microseconds())/1000)

	var aerr *simulate.AlignmentError
	if errors.As(err, &aerr) {
		metrics.RecordAlignmentError()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strategy, err)
	}
	return rows, nil
}

// Warm queues background fetches so later Dividends and Analyze calls for
// the same windows are served from the cache. It does not wait for them.
func (s *Service) Warm(ctx context.Context, req WarmRequest) (WarmReceipt, error) {
	s.mu.RLock()
	started, q := s.started, s.warmQueue
	s.mu.RUnlock()
	if !started {
		return WarmReceipt{}, ErrNotStarted
	}
	if len(req.Symbols) == 0 {
		return WarmReceipt{}, fmt.Errorf("%w: no symbols", ErrInvalidRequest)
	}

	receipt := WarmReceipt{Queued: []string{}}
	skip := func(symbol, reason string) {
		if receipt.Skipped == nil {
			receipt.Skipped = make(map[string]string)
		}
		receipt.Skipped[symbol] = reason
		metrics.RecordWarmJob("rejected", -1)
	}
	for _, symbol := range req.Symbols {
		w := model.NewFetchWindow(symbol, req.Start, req.End)
		if err := w.Validate(); err != nil {
			return WarmReceipt{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		err := q.Enqueue(ctx, queue.NewJob(w))
		switch {
		case err == nil:
			receipt.Queued = append(receipt.Queued, w.Symbol)
		case errors.Is(err, queue.ErrDuplicate):
			skip(w.Symbol, "already queued")
		case errors.Is(err, queue.ErrFull):
			skip(w.Symbol, "queue full")
		case errors.Is(err, queue.ErrClosed):
			return receipt, ErrNotStarted
		default:
			return receipt, err
		}
	}
	s.logger.Info(ctx, "queued cache warming",
		logger.Int("queued", len(receipt.Queued)),
		logger.Int("skipped", len(receipt.Skipped)),
		logger.Date("start", req.Start),
		logger.Date("end", req.End),
	)
	return receipt, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": s.started,
	}
	if s.cfg != nil {
		stats["cacheBackend"] = s.cfg.CacheBackend
		stats["timezone"] = s.cfg.Timezone
	}

	if s.started {
		cs := s.cache.Stats()
		stats["cacheHits"] = cs.Hits
		stats["cacheMisses"] = cs.Misses
		stats["cacheWrites"] = cs.Writes
		stats["cacheErrors"] = cs.Errors
		stats["warmQueueLength"] = s.warmQueue.Len(context.Background())
		stats["warmWorkers"] = s.warmPool.Size()

		if n, err := s.store.Len(context.Background()); err == nil {
			stats["cacheEntries"] = n
			metrics.UpdateCacheEntries(s.cfg.CacheBackend, n)
		}
	}
	return stats
}

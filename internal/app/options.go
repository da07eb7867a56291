package service

import (
	"context"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/repository"
	"github.com/darylmathison/dividend-stock-analysis/internal/config"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
)

// Fetcher retrieves the raw dividend events of a window.
type Fetcher interface {
	Fetch(ctx context.Context, w model.FetchWindow) (model.FetchResult, error)
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults from config.New are used
// otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects the cache store instead of opening the configured
// backend. The caller owns it: Stop leaves it open and a restart reuses it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithFetcher injects the dividend fetcher instead of the Polygon client.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithClock sets the time source used by the dividend cache.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNextSessionAlignment books dividends paid on non-trading days on the
// next session by default instead of failing the analysis.
func WithNextSessionAlignment(enabled bool) Option {
	return func(s *Service) {
		s.nextSession = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

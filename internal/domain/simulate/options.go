package simulate

import "github.com/darylmathison/dividend-stock-analysis/pkg/logger"

// Option applies a configuration option to a simulation run.
type Option func(*settings)

type settings struct {
	nextSession bool
	logger      logger.Logger
}

// WithNextSessionAlignment books a dividend whose pay date is not a trading
// day on the next available price row instead of failing. Dividends paid
// after the last price row are then dropped.
func WithNextSessionAlignment() Option {
	return func(s *settings) {
		s.nextSession = true
	}
}

// WithLogger sets the logger used to report alignment failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

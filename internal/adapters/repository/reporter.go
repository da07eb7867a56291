package repository

import (
	"context"
	"sync"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/pkg/metrics"
)

// entriesReporter periodically publishes a store's entry count.
type entriesReporter struct {
	wg       sync.WaitGroup
	stopChan chan struct{}
	once     sync.Once
}

func newEntriesReporter() *entriesReporter {
	return &entriesReporter{stopChan: make(chan struct{})}
}

func (r *entriesReporter) start(ctx context.Context, interval time.Duration, backend string, count func(context.Context) (int, error)) {
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				if n, err := count(ctx); err == nil {
					metrics.UpdateCacheEntries(backend, n)
				}
			}
		}
	}()
}

func (r *entriesReporter) stop() {
	r.once.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

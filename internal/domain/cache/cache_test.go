package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/repository"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/cache"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingFetch returns a ComputeFunc that serves result and counts calls.
func countingFetch(calls *atomic.Int32, result model.FetchResult, err error) cache.ComputeFunc {
	return func(_ context.Context, _ model.FetchWindow) (model.FetchResult, error) {
		calls.Add(1)
		return result, err
	}
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (brokenStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk on fire")
}
func (brokenStore) Delete(context.Context, string) error { return nil }
func (brokenStore) Len(context.Context) (int, error)     { return 0, nil }
func (brokenStore) Close() error                         { return nil }

func TestGetOrCompute(t *testing.T) {
	Convey("Given a cache over an empty store", t, func() {
		ctx := context.Background()
		clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
		store := repository.NewMemoryStore(ctx, repository.WithMetricsUpdateInterval(0))
		Reset(func() { _ = store.Close() })

		c, err := cache.New(store, cache.WithClock(clk.Now))
		So(err, ShouldBeNil)

		window := model.NewFetchWindow("ko", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))
		complete := model.FetchResult{
			Events:   []model.DividendEvent{{Symbol: "KO", ExDividendDate: "2020-03-13", PayDate: "2020-04-01", CashAmount: 0.41, Frequency: 4}},
			Complete: true,
			Pages:    1,
		}
		var calls atomic.Int32

		Convey("When the same window is requested twice", func() {
			fetch := countingFetch(&calls, complete, nil)
			first, err1 := c.GetOrCompute(ctx, window, fetch)
			second, err2 := c.GetOrCompute(ctx, window, fetch)

			Convey("Then the provider is called once and both results match", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 1)
				So(first.FromCache, ShouldBeFalse)
				So(second.FromCache, ShouldBeTrue)
				So(second.Complete, ShouldBeTrue)
				So(second.Events, ShouldResemble, first.Events)
				So(c.Stats(), ShouldResemble, cache.Stats{Hits: 1, Misses: 1, Writes: 1})
			})
		})

		Convey("When a different window is requested", func() {
			fetch := countingFetch(&calls, complete, nil)
			_, _ = c.GetOrCompute(ctx, window, fetch)
			other := model.NewFetchWindow("KO", window.Start, window.End.AddDate(0, 0, 1))
			_, _ = c.GetOrCompute(ctx, other, fetch)

			Convey("Then it is keyed separately", func() {
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the entry outlives its 30 day ttl", func() {
			fetch := countingFetch(&calls, complete, nil)
			_, _ = c.GetOrCompute(ctx, window, fetch)

			clk.Advance(cache.DefaultTTL - time.Minute)
			_, _ = c.GetOrCompute(ctx, window, fetch)
			So(calls.Load(), ShouldEqual, 1)

			clk.Advance(time.Minute)
			res, err := c.GetOrCompute(ctx, window, fetch)

			Convey("Then the provider is called again", func() {
				So(err, ShouldBeNil)
				So(res.FromCache, ShouldBeFalse)
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the fetch fails", func() {
			boom := errors.New("provider exploded")
			_, err := c.GetOrCompute(ctx, window, countingFetch(&calls, model.FetchResult{}, boom))

			Convey("Then the error is returned and nothing is cached", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				n, _ := store.Len(ctx)
				So(n, ShouldEqual, 0)

				_, err = c.GetOrCompute(ctx, window, countingFetch(&calls, complete, nil))
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the fetch is partial", func() {
			partial := complete
			partial.Complete = false
			partial.Cause = errors.New("connection reset")
			res, err := c.GetOrCompute(ctx, window, countingFetch(&calls, partial, nil))

			Convey("Then the partial result is returned but not cached", func() {
				So(err, ShouldBeNil)
				So(res.Complete, ShouldBeFalse)
				So(len(res.Events), ShouldEqual, 1)
				n, _ := store.Len(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the entry is invalidated", func() {
			fetch := countingFetch(&calls, complete, nil)
			_, _ = c.GetOrCompute(ctx, window, fetch)
			So(c.Invalidate(ctx, window), ShouldBeNil)
			_, _ = c.GetOrCompute(ctx, window, fetch)

			Convey("Then the next lookup fetches again", func() {
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When compute is nil", func() {
			_, err := c.GetOrCompute(ctx, window, nil)

			Convey("Then it fails fast", func() {
				So(errors.Is(err, cache.ErrNilCompute), ShouldBeTrue)
			})
		})
	})
}

func TestConcurrentCallers(t *testing.T) {
	Convey("Given many callers asking for the same window at once", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx, repository.WithMetricsUpdateInterval(0))
		defer store.Close()
		c, _ := cache.New(store)
		window := model.NewFetchWindow("O", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC))

		var calls atomic.Int32
		release := make(chan struct{})
		fetch := func(context.Context, model.FetchWindow) (model.FetchResult, error) {
			calls.Add(1)
			<-release
			return model.FetchResult{Complete: true, Events: []model.DividendEvent{{Symbol: "O", PayDate: "2021-01-15", Frequency: 12}}}, nil
		}

		const callers = 16
		var wg sync.WaitGroup
		results := make([]model.FetchResult, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], _ = c.GetOrCompute(ctx, window, fetch)
			}(i)
		}
		for calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		Convey("Then only one fetch runs and everyone gets its events", func() {
			So(calls.Load(), ShouldEqual, 1)
			for _, r := range results {
				So(len(r.Events), ShouldEqual, 1)
			}
		})
	})
}

func TestCancelledCaller(t *testing.T) {
	Convey("Given two callers sharing one in-flight fetch", t, func() {
		store := repository.NewMemoryStore(context.Background(), repository.WithMetricsUpdateInterval(0))
		defer store.Close()
		c, _ := cache.New(store)
		window := model.NewFetchWindow("PEP", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC))

		var calls atomic.Int32
		started := make(chan struct{})
		release := make(chan struct{})
		fetch := func(ctx context.Context, _ model.FetchWindow) (model.FetchResult, error) {
			calls.Add(1)
			close(started)
			select {
			case <-ctx.Done():
				return model.FetchResult{}, ctx.Err()
			case <-release:
			}
			return model.FetchResult{Complete: true, Events: []model.DividendEvent{{Symbol: "PEP", PayDate: "2021-03-31", Frequency: 4}}}, nil
		}

		firstCtx, cancelFirst := context.WithCancel(context.Background())
		defer cancelFirst()
		firstErr := make(chan error, 1)
		go func() {
			_, err := c.GetOrCompute(firstCtx, window, fetch)
			firstErr <- err
		}()
		<-started

		type outcome struct {
			res model.FetchResult
			err error
		}
		second := make(chan outcome, 1)
		go func() {
			res, err := c.GetOrCompute(context.Background(), window, fetch)
			second <- outcome{res, err}
		}()
		time.Sleep(20 * time.Millisecond)

		Convey("When the first caller cancels before the fetch finishes", func() {
			cancelFirst()
			err := <-firstErr
			close(release)
			got := <-second

			Convey("Then only the first caller sees the cancellation", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(got.err, ShouldBeNil)
				So(len(got.res.Events), ShouldEqual, 1)
				So(calls.Load(), ShouldEqual, 1)
			})

			Convey("And the result is cached for later callers", func() {
				res, err := c.GetOrCompute(context.Background(), window, fetch)
				So(err, ShouldBeNil)
				So(res.FromCache, ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestStoreFailures(t *testing.T) {
	Convey("Given a store that fails every call", t, func() {
		ctx := context.Background()
		c, err := cache.New(brokenStore{})
		So(err, ShouldBeNil)
		window := model.NewFetchWindow("T", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC))
		var calls atomic.Int32

		Convey("When a window is requested", func() {
			res, err := c.GetOrCompute(ctx, window, countingFetch(&calls, model.FetchResult{Complete: true}, nil))

			Convey("Then the fetched result is still returned", func() {
				So(err, ShouldBeNil)
				So(res.Complete, ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
				// two failed reads and one failed write
				So(c.Stats().Errors, ShouldEqual, 3)
			})
		})
	})

	Convey("Given a nil store", t, func() {
		_, err := cache.New(nil)

		Convey("Then construction fails", func() {
			So(errors.Is(err, cache.ErrNilStore), ShouldBeTrue)
		})
	})
}

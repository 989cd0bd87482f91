// Package worker runs per-item jobs on a fixed-size, rate-limited pool.
package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Options struct {
	Concurrency int     // number of goroutines
	QPS         float64 // sustained jobs per second across the pool; 0 = unlimited
	Burst       int     // burst to allow short spikes
	// Jitter spreads job starts by up to this much so one batch does not hit
	// a provider as a single burst.
	Jitter time.Duration
}

// Pool bounds how many jobs run at once in this process. One Pool is shared
// by all batches, so concurrent requests cannot multiply provider load.
type Pool struct {
	opt     Options
	limiter *rate.Limiter
	sem     chan struct{}
}

func NewPool(opt Options) *Pool {
	if opt.Concurrency <= 0 {
		opt.Concurrency = 1
	}
	limit := rate.Inf
	if opt.QPS > 0 {
		limit = rate.Limit(opt.QPS)
	}
	if opt.Burst <= 0 {
		opt.Burst = opt.Concurrency
	}
	return &Pool{
		opt:     opt,
		limiter: rate.NewLimiter(limit, opt.Burst),
		sem:     make(chan struct{}, opt.Concurrency),
	}
}

// Run calls fn(ctx, i) for i in [0, n) and returns when all have finished.
// A panicking job is recovered and logged; it never takes down its siblings.
// Jobs that never started because ctx ended are reported through skipped.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int), skipped func(i int, err error)) {
	jobs := make(chan int, min(n, cap(p.sem)*2))
	var wg sync.WaitGroup

	workers := min(n, cap(p.sem))
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := p.acquire(ctx); err != nil {
					if skipped != nil {
						skipped(i, err)
					}
					continue
				}
				p.runOne(ctx, i, fn)
				<-p.sem
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		<-p.sem
		return err
	}
	if d := jitter(p.opt.Jitter); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			<-p.sem
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pool) runOne(ctx context.Context, i int, fn func(context.Context, int)) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Str("panic", fmt.Sprint(r)).Int("job", i).Msg("worker job panicked")
		}
	}()
	fn(ctx, i)
}

// jitter returns a random duration in [0, d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

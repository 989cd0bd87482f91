package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/invitely/invite-dispatch/internal/worker"
)

func TestPool_RunsEveryJobWithinConcurrency(t *testing.T) {
	p := worker.NewPool(worker.Options{Concurrency: 3})

	var running, peak, done int64
	p.Run(context.Background(), 20, func(ctx context.Context, i int) {
		n := atomic.AddInt64(&running, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&running, -1)
		atomic.AddInt64(&done, 1)
	}, nil)

	require.EqualValues(t, 20, done)
	require.LessOrEqual(t, peak, int64(3))
}

func TestPool_SharedAcrossRuns(t *testing.T) {
	p := worker.NewPool(worker.Options{Concurrency: 2})

	var running, peak int64
	job := func(ctx context.Context, i int) {
		n := atomic.AddInt64(&running, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&running, -1)
	}

	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(context.Background(), 5, job, nil)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak, int64(2))
}

func TestPool_RecoversPanics(t *testing.T) {
	p := worker.NewPool(worker.Options{Concurrency: 2})

	var done int64
	p.Run(context.Background(), 6, func(ctx context.Context, i int) {
		if i%2 == 0 {
			panic("boom")
		}
		atomic.AddInt64(&done, 1)
	}, nil)
	require.EqualValues(t, 3, done)
}

func TestPool_ReportsSkippedJobs(t *testing.T) {
	p := worker.NewPool(worker.Options{Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var mu sync.Mutex
	var skipped []int
	var ran int64
	p.Run(ctx, 4, func(ctx context.Context, i int) {
		atomic.AddInt64(&ran, 1)
	}, func(i int, err error) {
		require.ErrorIs(t, err, context.Canceled)
		mu.Lock()
		skipped = append(skipped, i)
		mu.Unlock()
	})

	// a free slot and a cancelled context race in select, so some jobs may
	// still start; every job is accounted for exactly once
	require.EqualValues(t, 4, int(ran)+len(skipped))
}

func TestPool_RateLimits(t *testing.T) {
	p := worker.NewPool(worker.Options{Concurrency: 4, QPS: 50, Burst: 1})

	start := time.Now()
	p.Run(context.Background(), 6, func(ctx context.Context, i int) {}, nil)
	// one token up front, five more at 20ms each
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestPool_EmptyRun(t *testing.T) {
	p := worker.NewPool(worker.Options{})
	p.Run(context.Background(), 0, func(ctx context.Context, i int) {
		t.Fatal("no jobs expected")
	}, nil)
}

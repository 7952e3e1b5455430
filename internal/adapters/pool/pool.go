// Package pool runs a function over a slice of jobs on a bounded set of
// worker goroutines and funnels completions to a single consumer.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sieve/pkg/logger"
	"github.com/okian/sieve/pkg/metrics"
)

const defaultWorkers = 1

// ErrNoProcessor is returned when Run is called without a process function.
var ErrNoProcessor = errors.New("pool: nil process function")

type job[In any] struct {
	idx int
	in  In
}

type completion[In, Out any] struct {
	idx int
	in  In
	out Out
}

// Stats describes what a Run did.
type Stats struct {
	Jobs       int
	Dispatched int
	Completed  int
	Elapsed    time.Duration
}

// Run processes items with at most the configured number of workers.
//
// onDone is invoked for every finished job, one at a time, on the calling
// goroutine, so it may own state without locking. A non-nil error from onDone
// stops dispatch; jobs already running still finish and are drained, but
// onDone is not called again. When ctx is canceled no new jobs are started.
//
// The returned error is the first onDone error, otherwise ctx.Err() if the
// run was cut short.
func Run[In, Out any](
	ctx context.Context,
	items []In,
	process func(context.Context, In) Out,
	onDone func(In, Out) error,
	opts ...Option,
) (Stats, error) {
	if process == nil {
		return Stats{}, ErrNoProcessor
	}
	o := options{workers: defaultWorkers, name: "pool"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named(o.name)
	}
	workers := o.workers
	if workers > len(items) {
		workers = len(items)
	}

	stats := Stats{Jobs: len(items)}
	started := time.Now()
	if len(items) == 0 {
		return stats, ctx.Err()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job[In])
	done := make(chan completion[In, Out], workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				metrics.IncInFlight()
				out := process(ctx, j.in)
				metrics.DecInFlight()
				done <- completion[In, Out]{idx: j.idx, in: j.in, out: out}
			}
		}()
	}

	dispatched := make(chan int, 1)
	go func() {
		defer close(jobs)
		n := 0
		defer func() { dispatched <- n }()
		for i, item := range items {
			// check first so a canceled run never races a ready worker
			if runCtx.Err() != nil {
				return
			}
			select {
			case jobs <- job[In]{idx: i, in: item}:
				n++
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	o.log.Debug(ctx, "pool started", logger.Int("jobs", len(items)), logger.Int("workers", workers))

	var firstErr error
	for c := range done {
		stats.Completed++
		if firstErr != nil || onDone == nil {
			continue
		}
		if err := onDone(c.in, c.out); err != nil {
			firstErr = fmt.Errorf("job %d: %w", c.idx, err)
			cancel()
		}
	}
	stats.Dispatched = <-dispatched
	stats.Elapsed = time.Since(started)

	o.log.Debug(ctx, "pool finished",
		logger.Int("dispatched", stats.Dispatched),
		logger.Int("completed", stats.Completed),
		logger.Duration("elapsed", stats.Elapsed),
	)

	if firstErr != nil {
		return stats, firstErr
	}
	return stats, ctx.Err()
}

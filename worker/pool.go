// Package worker provides the bounded-concurrency pool the orchestrator
// composes two of (source-level and repo-level). Adapted from the teacher's
// queue-draining worker pool: that pool loops forever pulling jobs off a
// shared queue, which fits a long-lived service but not a finite per-run job
// list with strict input-order preservation, so this version runs a fixed
// slice of jobs through a bounded number of goroutines and writes each
// result into its pre-assigned slot, matching the ordering guarantee the
// collection engine requires regardless of scheduling jitter.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/evalgo/digestengine/common"
)

// Run executes fn once per item in items, using at most concurrency
// goroutines at a time, and returns results and errors in input order. A
// concurrency of 1 (or len(items) <= 1) runs sequentially. fn errors are
// collected per-index rather than aborting sibling work, matching the
// collection engine's failure policy: one job's failure never blocks
// another's. A panic inside fn is recovered, logged through logger, and
// surfaced as that item's error rather than crashing the run; a nil logger
// falls back to common.Logger. Each concurrent goroutine tags its logger
// and context with its pool slot via common.WithWorker for log correlation.
func Run[T any, R any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, index int, item T) (R, error), logger *common.ContextLogger) ([]R, []error) {
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	n := len(items)
	results := make([]R, n)
	errs := make([]error, n)

	if n == 0 {
		return results, errs
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > n {
		concurrency = n
	}

	runOne := func(slot int, i int, item T) {
		itemLogger := logger.WithFields(map[string]interface{}{"worker": slot, "index": i})
		defer common.LogPanic(itemLogger, &errs[i], fmt.Sprintf("worker slot %d, item %d", slot, i))
		workerCtx := common.WithWorker(ctx, slot)
		results[i], errs[i] = fn(workerCtx, i, item)
	}

	if concurrency == 1 {
		for i, item := range items {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				continue
			}
			runOne(0, i, item)
		}
		return results, errs
	}

	slots := make(chan int, concurrency)
	for s := 0; s < concurrency; s++ {
		slots <- s
	}
	var wg sync.WaitGroup
	for i, item := range items {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		slot := <-slots
		go func(slot, i int, item T) {
			defer wg.Done()
			defer func() { slots <- slot }()
			runOne(slot, i, item)
		}(slot, i, item)
	}
	wg.Wait()

	return results, errs
}

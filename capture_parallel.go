package caret

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"
)

// captureItem is one file handed to a capture worker.
type captureItem struct {
	index int
	path  string
}

// CaptureAll captures every path with the same caret offset, parsing files
// on a worker pool. Snapshots come back in path order. Files that fail are
// left nil and reported in the returned error.
func (e *Engine) CaptureAll(ctx context.Context, paths []string, offset int) ([]*Snapshot, error) {
	snaps := make([]*Snapshot, len(paths))
	if len(paths) == 0 {
		return snaps, nil
	}

	numWorkers := e.workers
	if numWorkers <= 0 {
		numWorkers = goruntime.NumCPU()
	}
	numWorkers = max(1, min(numWorkers, len(paths)))

	workCh := make(chan captureItem, len(paths))
	for i, p := range paths {
		workCh <- captureItem{index: i, path: p}
	}
	close(workCh)

	type result struct {
		item captureItem
		snap *Snapshot
		err  error
	}
	resultCh := make(chan result, len(paths))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{item: item, err: err}
					continue
				}
				snap, err := e.Capture(ctx, item.path, nil, offset)
				resultCh <- result{item: item, snap: snap, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var errs []error
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("capture %s: %w", res.item.path, res.err))
			continue
		}
		snaps[res.item.index] = res.snap
	}
	if len(errs) > 0 {
		return snaps, fmt.Errorf("caret: capture had %d error(s): %w", len(errs), errs[0])
	}
	return snaps, nil
}

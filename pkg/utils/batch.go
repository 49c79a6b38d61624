package utils

import (
	"context"
	"errors"
	"sync"
)

// BatchProcess runs fn on every item, batchSize items at a time in parallel.
// A batch completes before the next starts. Errors are joined; processing
// stops early only when ctx is cancelled.
func BatchProcess[T any](ctx context.Context, items []T, batchSize int, fn func(ctx context.Context, item T) error) error {
	if batchSize <= 0 {
		batchSize = 1
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < len(items); i += batchSize {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for _, item := range items[i:end] {
			wg.Add(1)
			go func(it T) {
				defer wg.Done()
				if err := fn(ctx, it); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(item)
		}
		wg.Wait()
	}
	return errors.Join(errs...)
}

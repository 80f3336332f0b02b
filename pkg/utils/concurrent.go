package utils

import (
	"context"
	"sync"
)

// DefaultConcurrency is used when a caller passes a non-positive limit.
const DefaultConcurrency = 4

// ExecuteWithResults runs functions with at most maxConcurrency in flight.
// Results and errors are aligned with functions. A function that has not
// started when ctx is done gets ctx.Err(); a panic becomes a *PanicError.
func ExecuteWithResults[T any](ctx context.Context, maxConcurrency int, functions ...func() (T, error)) ([]T, []error) {
	if len(functions) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}

	semaphore := make(chan struct{}, maxConcurrency)
	results := make([]T, len(functions))
	errors := make([]error, len(functions))
	var wg sync.WaitGroup

	for i, fn := range functions {
		wg.Add(1)
		go func(index int, function func() (T, error)) {
			defer wg.Done()
			defer RecoverWithCallback(func(err error) {
				errors[index] = err
			})

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				errors[index] = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				errors[index] = err
				return
			}

			results[index], errors[index] = function()
		}(i, fn)
	}

	wg.Wait()
	return results, errors
}

package backend

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

// CompleteParallel fans requests out against one backend and returns
// results in request order. The backend's MaxConcurrent cap bounds the
// in-flight count. Every slot is filled: request errors and panics
// become errored results, never missing entries.
func CompleteParallel(ctx context.Context, b Backend, reqs []*Request) []*domain.RoundResult {
	results := make([]*domain.RoundResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	limit := int64(b.MaxConcurrent())
	if limit <= 0 {
		limit = int64(len(reqs))
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *Request) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = FailedResult(req, fmt.Errorf("backend panic: %v", r))
				}
			}()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = FailedResult(req, err)
				return
			}
			defer sem.Release(1)

			res, err := b.Complete(ctx, req)
			if err != nil {
				res = FailedResult(req, err)
			}
			results[i] = res
		}(i, req)
	}
	wg.Wait()

	return results
}

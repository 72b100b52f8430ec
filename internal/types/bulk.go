package types

import (
	"context"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// DefaultBulkConcurrency bounds in-flight requests for per-item operations
const DefaultBulkConcurrency = 4

// ForEachLimit calls fn for every index in [0, n) with at most limit calls
// in flight and returns once all have finished. A limit of zero or less
// runs every call at once.
func ForEachLimit(n, limit int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	p := pool.New().WithMaxGoroutines(limit)
	for i := 0; i < n; i++ {
		p.Go(func() { fn(i) })
	}
	p.Wait()
}

// UniqueIDs drops repeated ids, keeping the first occurrence of each
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RunBulk calls fn once per distinct id with at most workers calls in
// flight. Items are independent: a failure never stops the others, and
// items not yet started when ctx is cancelled are recorded as failed with
// ctx.Err().
func RunBulk(ctx context.Context, ids []int64, workers int, fn func(context.Context, int64) error) *BulkResult {
	if workers <= 0 {
		workers = DefaultBulkConcurrency
	}
	ids = UniqueIDs(ids)

	result := NewBulkResult()
	var mu sync.Mutex
	record := func(id int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed[id] = err
			return
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	ForEachLimit(len(ids), workers, func(i int) {
		id := ids[i]
		if err := ctx.Err(); err != nil {
			record(id, err)
			return
		}
		record(id, fn(ctx, id))
	})

	sort.Slice(result.Succeeded, func(i, j int) bool { return result.Succeeded[i] < result.Succeeded[j] })
	return result
}

package variability

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Strategy selects how pair chunks are executed.
type Strategy string

const (
	// StrategySequential evaluates every chunk on the calling goroutine
	// with a single cache.
	StrategySequential Strategy = "sequential"

	// StrategyParallel fans chunks out to a fixed set of workers. Each
	// worker owns a private cache; nothing mutable is shared.
	StrategyParallel Strategy = "parallel"

	// StrategyShared fans chunks out to workers that share one
	// synchronized cache.
	StrategyShared Strategy = "shared"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySequential, StrategyParallel, StrategyShared:
		return Strategy(s), nil
	case "":
		return StrategyParallel, nil
	default:
		return "", fmt.Errorf("unknown aggregation strategy %q (want sequential, parallel or shared)", s)
	}
}

// workload is the read-only input handed to an executor.
type workload struct {
	variants []*Variant
	chunks   []PairRange
	done     func(chunk PairRange)
}

// executor evaluates the chunks of a workload and returns their summed
// contribution. Implementations must not share mutable state between
// chunks other than through a cache that is safe for their access pattern.
type executor interface {
	Execute(ctx context.Context, w *workload) (partial, error)
	CacheStats() CacheStats
}

// sequentialExecutor runs chunks one after another.
type sequentialExecutor struct {
	cache DistanceCache
}

func (e *sequentialExecutor) Execute(ctx context.Context, w *workload) (partial, error) {
	var total partial
	for _, r := range w.chunks {
		if err := ctx.Err(); err != nil {
			return partial{}, err
		}
		total.merge(evalRange(w.variants, r, e.cache))
		w.done(r)
	}
	return total, nil
}

func (e *sequentialExecutor) CacheStats() CacheStats {
	return statsOf(e.cache)
}

// parallelExecutor owns one cache per worker slot. Slot caches survive
// across Execute calls so variants recurring between logs stay memoized.
type parallelExecutor struct {
	workers int
	caches  []DistanceCache
}

func newParallelExecutor(workers, cacheSize int) *parallelExecutor {
	e := &parallelExecutor{workers: workers, caches: make([]DistanceCache, workers)}
	for i := range e.caches {
		e.caches[i] = NewDistanceCache(cacheSize)
	}
	return e
}

func (e *parallelExecutor) Execute(ctx context.Context, w *workload) (partial, error) {
	return fanOut(ctx, w, e.workers, func(slot int) DistanceCache { return e.caches[slot] })
}

func (e *parallelExecutor) CacheStats() CacheStats {
	var s CacheStats
	for _, c := range e.caches {
		cs := statsOf(c)
		s.Entries += cs.Entries
		s.Hits += cs.Hits
		s.Misses += cs.Misses
	}
	return s
}

// sharedExecutor fans out over one synchronized cache.
type sharedExecutor struct {
	workers int
	cache   DistanceCache
}

func (e *sharedExecutor) Execute(ctx context.Context, w *workload) (partial, error) {
	return fanOut(ctx, w, e.workers, func(int) DistanceCache { return e.cache })
}

func (e *sharedExecutor) CacheStats() CacheStats {
	return statsOf(e.cache)
}

// fanOut feeds chunks to a fixed number of worker goroutines. Each worker
// reduces its chunks locally; the per-worker partials are merged at the end.
// Integer sums make the merge order irrelevant.
func fanOut(ctx context.Context, w *workload, workers int, cacheFor func(slot int) DistanceCache) (partial, error) {
	if workers > len(w.chunks) {
		workers = len(w.chunks)
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	chunks := make(chan PairRange)
	results := make([]partial, workers)

	g.Go(func() error {
		defer close(chunks)
		for _, r := range w.chunks {
			select {
			case chunks <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for slot := 0; slot < workers; slot++ {
		slot := slot
		cache := cacheFor(slot)
		g.Go(func() error {
			for r := range chunks {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[slot].merge(evalRange(w.variants, r, cache))
				w.done(r)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return partial{}, err
	}

	var total partial
	for _, p := range results {
		total.merge(p)
	}
	return total, nil
}

func statsOf(c DistanceCache) CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return c.Stats()
}

// newExecutor builds the executor for a strategy.
func newExecutor(s Strategy, workers, cacheSize int) executor {
	switch s {
	case StrategySequential:
		return &sequentialExecutor{cache: NewDistanceCache(cacheSize)}
	case StrategyShared:
		return &sharedExecutor{workers: workers, cache: Locked(NewDistanceCache(cacheSize))}
	default:
		return newParallelExecutor(workers, cacheSize)
	}
}

// progressCounter serializes progress callbacks coming from workers.
type progressCounter struct {
	mu    sync.Mutex
	done  uint64
	total uint64
	fn    func(done, total uint64)
}

func (p *progressCounter) add(r PairRange) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	p.done += r.Len()
	p.fn(p.done, p.total)
	p.mu.Unlock()
}

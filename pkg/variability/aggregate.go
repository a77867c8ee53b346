package variability

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"runtime"
	"sort"
	"sync"
	"time"

	lverrors "github.com/logflow/logvar/pkg/errors"
)

// DefaultChunkSize is the number of variant pairs per work unit.
const DefaultChunkSize = 4096

// DefaultCacheSize bounds each distance cache. Pairs are unique within one
// log, so the cache only pays off across logs with shared variants.
const DefaultCacheSize = 1 << 20

// AggregatorConfig tunes pairwise aggregation.
type AggregatorConfig struct {
	// Strategy selects sequential or worker-based execution.
	Strategy Strategy

	// Workers is the number of concurrent workers (0 = runtime.NumCPU()).
	// Ignored by the sequential strategy.
	Workers int

	// ChunkSize is the number of pairs per chunk (0 = DefaultChunkSize).
	ChunkSize int

	// MaxPairs refuses logs with more variant pairs than this (0 = no limit).
	MaxPairs uint64

	// CacheSize bounds each distance cache: 0 unbounded, <0 disabled.
	CacheSize int

	// SortVariants orders variants by length before pairing. It only
	// affects speed, never the result.
	SortVariants bool

	// Deadline aborts a single aggregation that runs longer (0 = none).
	Deadline time.Duration

	// OnProgress, when set, is called after each chunk with the number of
	// pairs evaluated so far. Calls are serialized.
	OnProgress func(done, total uint64)

	Logger *slog.Logger
}

// DefaultAggregatorConfig returns sensible defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Strategy:     StrategyParallel,
		Workers:      runtime.NumCPU(),
		ChunkSize:    DefaultChunkSize,
		CacheSize:    DefaultCacheSize,
		SortVariants: true,
	}
}

// Aggregation is the result of a pairwise aggregation.
type Aggregation struct {
	// WeightedAverage is Σ d(a,b)·f(a)·f(b) / Σ f(a)·f(b) over unordered
	// pairs of distinct variants, or 0 when there are fewer than two.
	WeightedAverage float64

	// Undefined is true when the table had fewer than two variants and
	// WeightedAverage holds the 0 sentinel.
	Undefined bool

	// WeightedDistance and Weight are the exact numerator and denominator.
	WeightedDistance *big.Int
	Weight           *big.Int

	Pairs    uint64
	Chunks   int
	Cache    CacheStats
	Duration time.Duration
}

// Aggregator computes the frequency-weighted average edit distance of a
// variant table. It owns its distance caches; concurrent Aggregate calls on
// the same Aggregator are serialized.
type Aggregator struct {
	mu     sync.Mutex
	cfg    AggregatorConfig
	exec   executor
	logger *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyParallel
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Strategy == StrategySequential {
		cfg.Workers = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		cfg:    cfg,
		exec:   newExecutor(cfg.Strategy, cfg.Workers, cfg.CacheSize),
		logger: logger,
	}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() AggregatorConfig {
	return a.cfg
}

// CacheStats returns cumulative cache statistics of this aggregator.
func (a *Aggregator) CacheStats() CacheStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exec.CacheStats()
}

// Aggregate computes the weighted average edit distance of t.
//
// Fewer than two variants is not an error: the result is the 0 sentinel
// with Undefined set. Exceeding MaxPairs returns ErrTooManyPairs before any
// distance is computed; exceeding Deadline returns ErrDeadline.
func (a *Aggregator) Aggregate(ctx context.Context, t *VariantTable) (*Aggregation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	n := t.Len()
	total := PairCount(n)

	if total == 0 {
		return &Aggregation{
			Undefined:        true,
			WeightedDistance: new(big.Int),
			Weight:           new(big.Int),
		}, nil
	}

	if a.cfg.MaxPairs > 0 && total > a.cfg.MaxPairs {
		return nil, lverrors.New(lverrors.CodePairCeiling, "variant pair count exceeds ceiling").
			WithContext("variants", n).
			WithContext("pairs", total).
			WithContext("max_pairs", a.cfg.MaxPairs)
	}

	if a.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Deadline)
		defer cancel()
	}

	variants := orderVariants(t, a.cfg.SortVariants)
	chunks := SplitPairs(n, uint64(a.cfg.ChunkSize))
	progress := &progressCounter{total: total, fn: a.cfg.OnProgress}

	a.logger.Debug("aggregating variant pairs",
		"variants", n,
		"pairs", total,
		"chunks", len(chunks),
		"strategy", string(a.cfg.Strategy),
		"workers", a.cfg.Workers)

	sum, err := a.exec.Execute(ctx, &workload{
		variants: variants,
		chunks:   chunks,
		done:     progress.add,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, lverrors.Wrap(err, lverrors.CodeTimeout, "pairwise aggregation deadline exceeded").
				WithContext("pairs", total).
				WithContext("deadline", a.cfg.Deadline.String())
		}
		return nil, lverrors.Wrap(err, lverrors.CodeContextCanceled, "pairwise aggregation canceled")
	}

	num, den := sum.weighted.Big(), sum.weight.Big()
	avg, _ := new(big.Rat).SetFrac(num, den).Float64()

	return &Aggregation{
		WeightedAverage:  avg,
		WeightedDistance: num,
		Weight:           den,
		Pairs:            sum.pairs,
		Chunks:           len(chunks),
		Cache:            a.exec.CacheStats(),
		Duration:         time.Since(start),
	}, nil
}

// orderVariants returns pointers to the table's variants, optionally sorted
// by length and then key so that cheap comparisons are grouped together.
func orderVariants(t *VariantTable, sorted bool) []*Variant {
	vs := make([]*Variant, len(t.Variants))
	for i := range t.Variants {
		vs[i] = &t.Variants[i]
	}
	if sorted {
		sort.SliceStable(vs, func(i, j int) bool {
			if vs[i].Len() != vs[j].Len() {
				return vs[i].Len() < vs[j].Len()
			}
			return vs[i].Key < vs[j].Key
		})
	}
	return vs
}

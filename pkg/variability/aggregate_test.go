package variability

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

func exampleLog() *model.Log {
	return model.FromActivities("example",
		[]string{"A", "B", "C"},
		[]string{"A", "B", "C"},
		[]string{"A", "C", "B"},
	)
}

func TestAggregate_Example(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Strategy: StrategySequential})

	res, err := agg.Aggregate(context.Background(), ExtractVariants(exampleLog()))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if res.WeightedAverage != 2 {
		t.Errorf("WeightedAverage = %v, want 2", res.WeightedAverage)
	}
	if res.WeightedDistance.Cmp(big.NewInt(4)) != 0 || res.Weight.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("exact sums = %v/%v, want 4/2", res.WeightedDistance, res.Weight)
	}
	if res.Pairs != 1 || res.Undefined {
		t.Errorf("Pairs = %d, Undefined = %v, want 1, false", res.Pairs, res.Undefined)
	}
}

func TestAggregate_FewerThanTwoVariants(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())

	for _, log := range []*model.Log{
		model.FromActivities("single", []string{"A"}),
		model.FromActivities("same", []string{"A", "B"}, []string{"A", "B"}),
		{Name: "empty"},
	} {
		res, err := agg.Aggregate(context.Background(), ExtractVariants(log))
		if err != nil {
			t.Fatalf("%s: Aggregate() error = %v", log.Name, err)
		}
		if res.WeightedAverage != 0 || !res.Undefined {
			t.Errorf("%s: got %v (undefined=%v), want 0 sentinel", log.Name, res.WeightedAverage, res.Undefined)
		}
	}

	res, err := agg.Aggregate(context.Background(), nil)
	if err != nil || !res.Undefined {
		t.Errorf("nil table: res=%+v err=%v, want undefined sentinel", res, err)
	}
}

func TestAggregate_WeightsByFrequency(t *testing.T) {
	// (A):3, (B):1, (A,B):2, (C,D,E):1
	// d(A,B)=1 w=3, d(A,AB)=1 w=6, d(B,AB)=1 w=2 -> 11/11
	log := model.FromActivities("weights",
		[]string{"A"}, []string{"A"}, []string{"A"},
		[]string{"B"},
		[]string{"A", "B"}, []string{"A", "B"},
		[]string{"C", "D", "E"},
	)
	// (C,D,E) pairs: w=3 d=3, w=1 d=3, w=2 d=3 -> 18/6
	// total 29/17
	agg := NewAggregator(AggregatorConfig{Strategy: StrategySequential})
	res, err := agg.Aggregate(context.Background(), ExtractVariants(log))
	if err != nil {
		t.Fatal(err)
	}

	want, _ := big.NewRat(29, 17).Float64()
	if res.WeightedAverage != want {
		t.Errorf("WeightedAverage = %v, want %v", res.WeightedAverage, want)
	}
	if res.Pairs != 6 {
		t.Errorf("Pairs = %d, want 6", res.Pairs)
	}
}

func TestAggregate_PairCeiling(t *testing.T) {
	log := model.FromActivities("wide", []string{"A"}, []string{"B"}, []string{"C"}, []string{"D"})
	agg := NewAggregator(AggregatorConfig{MaxPairs: 5})

	_, err := agg.Aggregate(context.Background(), ExtractVariants(log))
	if !errors.Is(err, ErrTooManyPairs) {
		t.Fatalf("error = %v, want ErrTooManyPairs", err)
	}
	if lverrors.GetCode(err).Class() != lverrors.ClassResource {
		t.Errorf("class = %s, want %s", lverrors.GetCode(err).Class(), lverrors.ClassResource)
	}

	agg = NewAggregator(AggregatorConfig{MaxPairs: 6})
	if _, err := agg.Aggregate(context.Background(), ExtractVariants(log)); err != nil {
		t.Errorf("6 pairs under a ceiling of 6 should pass, got %v", err)
	}
}

func TestAggregate_Canceled(t *testing.T) {
	log := model.FromActivities("c", []string{"A"}, []string{"B"}, []string{"C"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, s := range []Strategy{StrategySequential, StrategyParallel, StrategyShared} {
		agg := NewAggregator(AggregatorConfig{Strategy: s, ChunkSize: 1, Workers: 2})
		_, err := agg.Aggregate(ctx, ExtractVariants(log))
		if !lverrors.IsCode(err, lverrors.CodeContextCanceled) {
			t.Errorf("%s: error = %v, want %s", s, err, lverrors.CodeContextCanceled)
		}
	}
}

func TestAggregate_Progress(t *testing.T) {
	log := model.FromActivities("p",
		[]string{"A"}, []string{"B"}, []string{"C"}, []string{"D"}, []string{"E"})

	var calls atomic.Int64
	var last uint64
	agg := NewAggregator(AggregatorConfig{
		Strategy:  StrategyParallel,
		Workers:   3,
		ChunkSize: 3,
		OnProgress: func(done, total uint64) {
			calls.Add(1)
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
			last = done
		},
	})

	res, err := agg.Aggregate(context.Background(), ExtractVariants(log))
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != 4 || calls.Load() != 4 {
		t.Errorf("Chunks = %d, progress calls = %d, want 4, 4", res.Chunks, calls.Load())
	}
	if last != 10 {
		t.Errorf("final progress = %d, want 10", last)
	}
}

func TestAggregate_CacheReusedAcrossCalls(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Strategy: StrategySequential})
	table := ExtractVariants(exampleLog())

	if _, err := agg.Aggregate(context.Background(), table); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.Aggregate(context.Background(), table); err != nil {
		t.Fatal(err)
	}

	stats := agg.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("CacheStats() = %+v, want 1 hit, 1 miss, 1 entry", stats)
	}
}

func TestDefaultAggregatorConfig_BoundsCache(t *testing.T) {
	cfg := DefaultAggregatorConfig()
	if cfg.CacheSize != DefaultCacheSize || cfg.CacheSize <= 0 {
		t.Fatalf("CacheSize = %d, want bounded default %d", cfg.CacheSize, DefaultCacheSize)
	}

	agg := NewAggregator(cfg)
	if _, ok := agg.exec.(*parallelExecutor); !ok {
		t.Fatalf("default executor = %T, want *parallelExecutor", agg.exec)
	}
	for i, c := range agg.exec.(*parallelExecutor).caches {
		if _, ok := c.(*lruCache); !ok {
			t.Errorf("worker %d cache = %T, want *lruCache", i, c)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"sequential", StrategySequential, false},
		{"parallel", StrategyParallel, false},
		{"shared", StrategyShared, false},
		{"", StrategyParallel, false},
		{"multiprocess", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func randomLog() gopter.Gen {
	trace := gen.SliceOf(gen.OneConstOf("A", "B", "C"))
	return gen.SliceOfN(30, trace).Map(func(traces [][]string) *model.Log {
		return model.FromActivities("random", traces...)
	})
}

func TestAggregateInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.MaxSize = 5
	properties := gopter.NewProperties(parameters)

	baseline := func(log *model.Log) *Aggregation {
		agg := NewAggregator(AggregatorConfig{Strategy: StrategySequential, ChunkSize: 1 << 30})
		res, err := agg.Aggregate(context.Background(), ExtractVariants(log))
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	properties.Property("result independent of strategy, workers and chunk size", prop.ForAll(
		func(log *model.Log, workers, chunk int, sorted bool) bool {
			want := baseline(log)
			for _, s := range []Strategy{StrategySequential, StrategyParallel, StrategyShared} {
				agg := NewAggregator(AggregatorConfig{
					Strategy:     s,
					Workers:      workers,
					ChunkSize:    chunk,
					SortVariants: sorted,
					CacheSize:    4,
				})
				got, err := agg.Aggregate(context.Background(), ExtractVariants(log))
				if err != nil {
					return false
				}
				if got.WeightedAverage != want.WeightedAverage ||
					got.WeightedDistance.Cmp(want.WeightedDistance) != 0 ||
					got.Weight.Cmp(want.Weight) != 0 ||
					got.Pairs != want.Pairs {
					return false
				}
			}
			return true
		},
		randomLog(),
		gen.IntRange(1, 8),
		gen.IntRange(1, 50),
		gen.Bool(),
	))

	properties.Property("frequencies sum to trace count", prop.ForAll(
		func(log *model.Log) bool {
			table := ExtractVariants(log)
			sum := 0
			for _, v := range table.Variants {
				sum += v.Frequency
			}
			return sum == log.TraceCount() && table.TraceCount() == log.TraceCount()
		},
		randomLog(),
	))

	properties.Property("pair count is n choose 2", prop.ForAll(
		func(log *model.Log) bool {
			table := ExtractVariants(log)
			agg := NewAggregator(AggregatorConfig{Strategy: StrategySequential})
			res, err := agg.Aggregate(context.Background(), table)
			return err == nil && res.Pairs == PairCount(table.Len())
		},
		randomLog(),
	))

	properties.TestingRun(t)
}

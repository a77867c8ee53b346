// Package batch runs the variability analysis over an ordered list of logs.
// One failing log never aborts the others unless fail-fast is requested.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/logvar/internal/model"
	"github.com/logflow/logvar/pkg/checkpoint"
	"github.com/logflow/logvar/pkg/config"
	lverrors "github.com/logflow/logvar/pkg/errors"
	"github.com/logflow/logvar/pkg/metrics"
	"github.com/logflow/logvar/pkg/source"
	"github.com/logflow/logvar/pkg/telemetry"
	"github.com/logflow/logvar/pkg/variability"
)

// Stage names used for metrics and spans.
const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageBuild = "build"
)

// Result is the outcome of one log. Exactly one of Report and Err is set.
type Result struct {
	Name   string
	Source string
	RunID  string

	Report *variability.Report
	Err    error

	// Cached is true when Report came from the checkpoint store.
	Cached   bool
	Digest   string
	Duration time.Duration
}

// OK reports whether the log was analyzed successfully.
func (r Result) OK() bool {
	return r.Err == nil
}

// Summary collects the results of a run in input order.
type Summary struct {
	Results   []Result
	Succeeded int
	Failed    int
	Cached    int
	Duration  time.Duration
}

// Reports returns the successful reports in input order.
func (s *Summary) Reports() []variability.Report {
	out := make([]variability.Report, 0, s.Succeeded)
	for _, r := range s.Results {
		if r.Report != nil {
			out = append(out, *r.Report)
		}
	}
	return out
}

// Err returns the failures combined, or nil when every log succeeded.
func (s *Summary) Err() error {
	var m lverrors.MultiError
	for _, r := range s.Results {
		m.Add(r.Err)
	}
	return m.Combined()
}

// Options configures a Runner.
type Options struct {
	// ParallelLogs bounds how many logs are analyzed at once (0 = 1).
	ParallelLogs int

	// FailFast cancels the remaining logs after the first failure.
	FailFast bool

	// Aggregator configures the pairwise aggregation of every log.
	// OnProgress is owned by the runner; use Progress instead.
	Aggregator variability.AggregatorConfig

	// Settings is folded into checkpoint keys (see SettingsFingerprint).
	Settings string

	Store   checkpoint.Store
	Metrics *metrics.Registry
	Tracer  trace.Tracer
	Logger  *slog.Logger

	// Progress receives pair-evaluation progress per log.
	Progress func(log string, done, total uint64)

	// OnResult is called once per log as it finishes. Calls are serialized.
	OnResult func(Result)
}

type progressFunc func(done, total uint64)

// slot is one pooled report builder. Aggregators keep their distance caches
// across logs, so a slot is used by one log at a time.
type slot struct {
	builder  *variability.Builder
	progress atomic.Pointer[progressFunc]
}

// Runner analyzes logs with a bounded pool of report builders.
type Runner struct {
	opts   Options
	loader LogLoader
	logger *slog.Logger
	tracer trace.Tracer
	store  checkpoint.Store
	pool   chan *slot

	emitMu sync.Mutex
}

// NewRunner creates a runner.
func NewRunner(loader LogLoader, opts Options) *Runner {
	if opts.ParallelLogs <= 0 {
		opts.ParallelLogs = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer()
	}
	store := opts.Store
	if store == nil {
		store = checkpoint.Nop{}
	}

	r := &Runner{
		opts:   opts,
		loader: loader,
		logger: logger,
		tracer: tracer,
		store:  store,
		pool:   make(chan *slot, opts.ParallelLogs),
	}
	for i := 0; i < opts.ParallelLogs; i++ {
		r.pool <- r.newSlot()
	}
	return r
}

func (r *Runner) newSlot() *slot {
	s := &slot{}
	cfg := r.opts.Aggregator
	cfg.Logger = r.logger
	cfg.OnProgress = func(done, total uint64) {
		if fn := s.progress.Load(); fn != nil {
			(*fn)(done, total)
		}
	}
	s.builder = variability.NewBuilder(variability.NewAggregator(cfg), r.logger)
	return s
}

// Run analyzes every log and returns their results in input order.
func (r *Runner) Run(ctx context.Context, logs []config.LogSpec) *Summary {
	start := time.Now()
	results := make([]Result, len(logs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ParallelLogs)

	for i, spec := range logs {
		i, spec := i, spec
		g.Go(func() error {
			res := r.RunOne(gctx, spec)
			results[i] = res
			if res.Err != nil && r.opts.FailFast {
				return res.Err
			}
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{Results: results, Duration: time.Since(start)}
	for _, res := range results {
		switch {
		case res.Err != nil:
			s.Failed++
		case res.Cached:
			s.Succeeded++
			s.Cached++
		default:
			s.Succeeded++
		}
	}

	r.logger.Info("batch finished",
		"logs", len(logs),
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"cached", s.Cached,
		"duration", s.Duration)
	return s
}

// RunOne analyzes a single log. Failures are returned in Result.Err.
func (r *Runner) RunOne(ctx context.Context, spec config.LogSpec) (res Result) {
	res = Result{Name: spec.Name, Source: spec.Source, RunID: uuid.NewString()}
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "logvar.analyze", trace.WithAttributes(
		telemetry.AttrLog.String(spec.Name),
		telemetry.AttrSource.String(spec.Source),
		telemetry.AttrRunID.String(res.RunID),
	))
	defer r.opts.Metrics.InFlight()()

	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(telemetry.AttrCached.Bool(res.Cached))
		telemetry.End(span, res.Err)
		r.finish(res)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = lverrors.Wrap(err, lverrors.CodeContextCanceled, "log skipped").WithContext("log", spec.Name)
		return res
	}

	var obj *source.Object
	err := r.stage(ctx, StageFetch, func(ctx context.Context) error {
		o, err := r.loader.Fetch(ctx, spec.Source)
		obj = o
		return err
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Digest = obj.Digest

	key := checkpoint.Key{Name: spec.Name, Digest: obj.Digest, Settings: r.opts.Settings}
	if entry := r.lookup(ctx, key); entry != nil {
		res.Report = &entry.Report
		res.Cached = true
		return res
	}

	var log *model.Log
	err = r.stage(ctx, StageParse, func(ctx context.Context) error {
		l, err := r.loader.Parse(ctx, obj, spec.Name)
		log = l
		return err
	})
	if err != nil {
		res.Err = err
		return res
	}
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.AttrFormat.String(obj.Format().String()),
		telemetry.AttrTraces.Int(log.TraceCount()),
	)

	var s *slot
	select {
	case s = <-r.pool:
	case <-ctx.Done():
		res.Err = lverrors.Wrap(ctx.Err(), lverrors.CodeContextCanceled, "log skipped").WithContext("log", spec.Name)
		return res
	}
	defer func() { r.pool <- s }()

	if r.opts.Progress != nil {
		fn := progressFunc(func(done, total uint64) { r.opts.Progress(spec.Name, done, total) })
		s.progress.Store(&fn)
		defer s.progress.Store(nil)
	}

	before := s.builder.Aggregator().CacheStats()
	var report variability.Report
	err = r.stage(ctx, StageBuild, func(ctx context.Context) error {
		rep, err := s.builder.Build(ctx, spec.Name, log)
		report = rep
		return err
	})
	after := s.builder.Aggregator().CacheStats()
	r.opts.Metrics.RecordCache(after.Hits-before.Hits, after.Misses-before.Misses)
	if err != nil {
		res.Err = err
		return res
	}
	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.AttrVariants.Int(report.Variants),
		telemetry.AttrPairs.Int64(int64(report.Pairs)),
	)

	res.Report = &report
	r.save(ctx, key, res)
	return res
}

// stage runs fn inside a child span and records its duration. A panic in
// fn fails only the current log.
func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	ctx, span := r.tracer.Start(ctx, "logvar."+name)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = lverrors.New(lverrors.CodeUnknown, fmt.Sprintf("panic recovered: %v", p)).
				WithContext("stage", name)
		}
		r.opts.Metrics.RecordStage(name, time.Since(start))
		telemetry.End(span, err)
	}()

	return fn(ctx)
}

func (r *Runner) lookup(ctx context.Context, key checkpoint.Key) *checkpoint.Entry {
	entry, ok, err := r.store.Load(ctx, key)
	switch {
	case err != nil:
		r.opts.Metrics.RecordCheckpoint("load", "error")
		r.logger.Warn("checkpoint lookup failed", "log", key.Name, "store", r.store.Name(), "error", err)
		return nil
	case !ok:
		r.opts.Metrics.RecordCheckpoint("load", "miss")
		return nil
	}
	r.opts.Metrics.RecordCheckpoint("load", "hit")
	r.logger.Debug("checkpoint hit", "log", key.Name, "digest", key.Digest, "run_id", entry.RunID)
	return entry
}

func (r *Runner) save(ctx context.Context, key checkpoint.Key, res Result) {
	err := r.store.Save(ctx, key, &checkpoint.Entry{
		Key:     key.String(),
		RunID:   res.RunID,
		Report:  *res.Report,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		r.opts.Metrics.RecordCheckpoint("save", "error")
		r.logger.Warn("checkpoint save failed", "log", key.Name, "store", r.store.Name(), "error", err)
		return
	}
	r.opts.Metrics.RecordCheckpoint("save", "ok")
}

// finish records the outcome of one log and hands it to OnResult.
func (r *Runner) finish(res Result) {
	if res.Err != nil {
		r.opts.Metrics.RecordFailure(res.Err)
		r.logger.Error("log failed",
			"log", res.Name,
			"run_id", res.RunID,
			"code", string(lverrors.GetCode(res.Err)),
			"error", res.Err)
	} else {
		rep := res.Report
		r.opts.Metrics.RecordReport(res.Name, rep.Variants, rep.Pairs, rep.EditDistance, rep.Entropy, res.Cached)
		r.logger.Info("log analyzed",
			"log", res.Name,
			"run_id", res.RunID,
			"variants", rep.Variants,
			"edit_distance", rep.EditDistance,
			"entropy", rep.Entropy,
			"cached", res.Cached,
			"duration", res.Duration)
	}

	if r.opts.OnResult != nil {
		r.emitMu.Lock()
		r.opts.OnResult(res)
		r.emitMu.Unlock()
	}
}

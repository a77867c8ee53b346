package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/logflow/logvar/pkg/batch"
	"github.com/logflow/logvar/pkg/checkpoint"
	"github.com/logflow/logvar/pkg/config"
	"github.com/logflow/logvar/pkg/logging"
	"github.com/logflow/logvar/pkg/metrics"
	"github.com/logflow/logvar/pkg/parser"
	"github.com/logflow/logvar/pkg/source"
	"github.com/logflow/logvar/pkg/telemetry"
	"github.com/logflow/logvar/pkg/tui"
	"github.com/logflow/logvar/pkg/variability"
)

// Analysis flags shared by analyze and watch.
var (
	workersFlag      int
	chunkSizeFlag    int
	strategyFlag     string
	maxPairsFlag     uint64
	deadlineFlag     time.Duration
	outputFlag       string
	outputFormatFlag string
	engineFlag       string
	activityKeyFlag  string
	caseKeyFlag      string
	timestampKeyFlag string
	delimiterFlag    string
	checkpointFlag   string
	parallelLogsFlag int
	failFastFlag     bool
	noProgressFlag   bool
	quietFlag        bool
	metricsAddrFlag  string
)

func addAnalysisFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&workersFlag, "workers", "w", 0, "Pair-evaluation workers (0 = number of CPUs)")
	f.IntVar(&chunkSizeFlag, "chunk-size", 0, "Variant pairs per work chunk")
	f.StringVar(&strategyFlag, "strategy", "", "Execution strategy (sequential, parallel, shared)")
	f.Uint64Var(&maxPairsFlag, "max-pairs", 0, "Refuse logs with more variant pairs (0 = no limit)")
	f.DurationVar(&deadlineFlag, "deadline", 0, "Abort a log's pairwise aggregation after this long")
	f.StringVarP(&outputFlag, "output", "o", "", "Results file ('-' for stdout, '' to skip)")
	f.StringVar(&outputFormatFlag, "format", "", "Results format (text, json)")
	f.StringVar(&engineFlag, "engine", "", "Loader for local tabular files (native, duckdb)")
	f.StringVar(&activityKeyFlag, "activity", "", "Activity attribute or column")
	f.StringVar(&caseKeyFlag, "case-id", "", "Case ID column")
	f.StringVar(&timestampKeyFlag, "timestamp", "", "Timestamp attribute or column")
	f.StringVar(&delimiterFlag, "delimiter", "", "CSV field delimiter")
	f.StringVar(&checkpointFlag, "checkpoint", "", "Checkpoint store (none, memory, redis)")
	f.IntVarP(&parallelLogsFlag, "parallel-logs", "p", 0, "Logs analyzed concurrently")
	f.BoolVar(&failFastFlag, "fail-fast", false, "Stop at the first failing log")
	f.BoolVar(&noProgressFlag, "no-progress", false, "Hide the pair-evaluation progress bar")
	f.BoolVarP(&quietFlag, "quiet", "q", false, "Do not print results to the terminal")
	f.StringVar(&metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// loadConfig merges config files, environment and the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	m := config.NewManager()
	if err := m.Load(configPath); err != nil {
		return nil, err
	}
	cfg := m.Get()

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if fl := f.Lookup(name); fl != nil && fl.Changed {
			apply()
		}
	}
	set("workers", func() { cfg.Variability.Workers = workersFlag })
	set("chunk-size", func() { cfg.Variability.ChunkSize = chunkSizeFlag })
	set("strategy", func() { cfg.Variability.Strategy = strategyFlag })
	set("max-pairs", func() { cfg.Variability.MaxPairs = maxPairsFlag })
	set("deadline", func() { cfg.Variability.Deadline = deadlineFlag })
	set("output", func() { cfg.Output.Path = outputFlag })
	set("format", func() { cfg.Output.Format = outputFormatFlag })
	set("engine", func() { cfg.Parser.Engine = engineFlag })
	set("activity", func() { cfg.Parser.ActivityKey = activityKeyFlag })
	set("case-id", func() { cfg.Parser.CaseKey = caseKeyFlag })
	set("timestamp", func() { cfg.Parser.TimestampKey = timestampKeyFlag })
	set("delimiter", func() { cfg.Parser.Delimiter = delimiterFlag })
	set("checkpoint", func() { cfg.Checkpoint.Backend = checkpointFlag })
	set("parallel-logs", func() { cfg.Batch.ParallelLogs = parallelLogsFlag })
	set("fail-fast", func() { cfg.Batch.FailFast = failFastFlag })
	set("no-progress", func() { cfg.Output.Progress = !noProgressFlag })
	set("quiet", func() { cfg.Output.Terminal = !quietFlag })
	set("metrics-addr", func() {
		cfg.Metrics.Enabled = metricsAddrFlag != ""
		cfg.Metrics.Address = metricsAddrFlag
	})
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserConfig(cfg *config.Config) parser.Config {
	pc := parser.Config{
		CaseKey:      cfg.Parser.CaseKey,
		ActivityKey:  cfg.Parser.ActivityKey,
		TimestampKey: cfg.Parser.TimestampKey,
		ResourceKey:  cfg.Parser.ResourceKey,
		BufferSize:   cfg.Parser.BufferSize,
	}
	for _, r := range cfg.Parser.Delimiter {
		pc.Delimiter = r
		break
	}
	return pc
}

func aggregatorConfig(cfg *config.Config) (variability.AggregatorConfig, error) {
	strategy, err := variability.ParseStrategy(cfg.Variability.Strategy)
	if err != nil {
		return variability.AggregatorConfig{}, err
	}
	return variability.AggregatorConfig{
		Strategy:     strategy,
		Workers:      cfg.Variability.Workers,
		ChunkSize:    cfg.Variability.ChunkSize,
		MaxPairs:     cfg.Variability.MaxPairs,
		CacheSize:    cfg.Variability.CacheSize,
		SortVariants: cfg.Variability.SortVariants,
		Deadline:     cfg.Variability.Deadline,
	}, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func newLoader(cfg *config.Config, logger *slog.Logger) *batch.Loader {
	resolver := source.NewResolver(source.S3Config{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.PathStyle,
	})
	return batch.NewLoader(resolver, parserConfig(cfg), cfg.Parser.Engine, logger)
}

func newStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "memory":
		return checkpoint.NewMemory(), nil
	case "redis":
		rc := checkpoint.DefaultRedisConfig(cfg.Checkpoint.Redis.Address)
		rc.Password = cfg.Checkpoint.Redis.Password
		rc.Database = cfg.Checkpoint.Redis.Database
		if cfg.Checkpoint.Redis.Prefix != "" {
			rc.Prefix = cfg.Checkpoint.Redis.Prefix
		}
		rc.TTL = cfg.Checkpoint.Redis.TTL
		return checkpoint.NewRedis(ctx, rc)
	}
	return checkpoint.Nop{}, nil
}

// app holds everything a run needs. Close releases it in reverse order.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracing  *telemetry.Provider
	metrics  *metrics.Registry
	store    checkpoint.Store
	loader   *batch.Loader
	runner   *batch.Runner
	progress *tui.Progress

	stopMetrics context.CancelFunc
	metricsDone chan error
}

func newApp(ctx context.Context, cfg *config.Config, onResult func(batch.Result)) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	tc := telemetry.DefaultConfig("logvar")
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.ServiceVersion = version
	tc.Insecure = cfg.Telemetry.Insecure
	tc.SamplingRatio = cfg.Telemetry.SamplingRate
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	if a.tracing, err = telemetry.Init(ctx, tc); err != nil {
		return nil, err
	}

	a.metrics = metrics.NewRegistry()
	if cfg.Metrics.Enabled {
		srv, err := a.metrics.Listen(cfg.Metrics.Address)
		if err != nil {
			a.Close()
			return nil, err
		}
		mctx, cancel := context.WithCancel(context.Background())
		a.stopMetrics = cancel
		a.metricsDone = make(chan error, 1)
		go func() { a.metricsDone <- srv.Serve(mctx) }()
		logger.Info("serving metrics", "addr", srv.Addr())
	}

	if a.store, err = newStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	aggCfg, err := aggregatorConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := batch.Options{
		ParallelLogs: cfg.Batch.ParallelLogs,
		FailFast:     cfg.Batch.FailFast,
		Aggregator:   aggCfg,
		Settings:     batch.SettingsFingerprint(parserConfig(cfg)),
		Store:        a.store,
		Metrics:      a.metrics,
		Tracer:       a.tracing.Tracer(),
		Logger:       logger,
		OnResult:     onResult,
	}
	if cfg.Output.Progress && isatty.IsTerminal(os.Stderr.Fd()) {
		a.progress = tui.NewProgress(os.Stderr)
		opts.Progress = a.progress.Update
	}

	a.loader = newLoader(cfg, logger)
	a.runner = batch.NewRunner(a.loader, opts)
	return a, nil
}

func (a *app) Close() {
	if a.progress != nil {
		a.progress.Done()
	}
	if a.loader != nil {
		if err := a.loader.Close(); err != nil {
			a.logger.Warn("closing loader", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing checkpoint store", "error", err)
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil {
			a.logger.Warn("metrics server", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("flushing traces", "error", err)
	}
}

// logSpecs returns the logs named on the command line, or the configured ones.
func logSpecs(cfg *config.Config, args []string) ([]config.LogSpec, error) {
	if len(args) == 0 {
		if len(cfg.Logs) == 0 {
			return nil, fmt.Errorf("no logs to analyze: pass name=path arguments or set logs in the config file")
		}
		return cfg.Logs, nil
	}

	specs := make([]config.LogSpec, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		spec, err := config.ParseLogSpec(arg)
		if err != nil {
			return nil, err
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("log name %q given twice; use name=path to disambiguate", spec.Name)
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

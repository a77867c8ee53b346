package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/logvar/pkg/batch"
	"github.com/logflow/logvar/pkg/config"
	"github.com/logflow/logvar/pkg/source"
	"github.com/logflow/logvar/pkg/tui"
	"github.com/logflow/logvar/pkg/watch"
)

var debounceFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [name=path ...]",
	Short: "Re-analyze logs whenever their files change",
	Long: `Analyze the given logs once, then watch their files and re-analyze a log
each time it changes. The results file is rewritten after every update.

Only local files can be watched; s3:// logs are analyzed once.

Examples:
  logvar watch loan=exports/loan.xes
  logvar watch --debounce 2s -o results.txt`,
	RunE: runWatch,
}

func init() {
	addAnalysisFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", watch.DefaultDebounce, "Quiet period after a write before re-analyzing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	specs, err := logSpecs(cfg, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	summary := a.runner.Run(ctx, specs)
	state := newWatchState(cfg, summary.Results)
	if err := state.flush(); err != nil {
		return err
	}
	if cfg.Output.Terminal {
		tui.PrintSummary(os.Stdout, summary)
	}

	w, err := watch.NewWatcher(debounceFlag)
	if err != nil {
		return err
	}
	defer w.Close()

	byName := make(map[string]config.LogSpec, len(specs))
	watched := 0
	for _, spec := range specs {
		if source.IsS3(spec.Source) {
			a.logger.Warn("not watching remote log", "log", spec.Name, "source", spec.Source)
			continue
		}
		if err := w.Watch(spec.Name, spec.Source); err != nil {
			a.logger.Warn("not watching log", "log", spec.Name, "error", err)
			continue
		}
		byName[spec.Name] = spec
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no local log files to watch")
	}

	w.OnError = func(path string, err error) {
		a.logger.Warn("watch error", "path", path, "error", err)
	}
	w.OnChange = func(ctx context.Context, name string) {
		a.logger.Info("change detected", "log", name)
		res := a.runner.RunOne(ctx, byName[name])
		if ctx.Err() != nil {
			return
		}
		if cfg.Output.Terminal {
			fmt.Fprintf(os.Stdout, "[%s]\n%s\n", time.Now().Format("15:04:05"), tui.RenderResult(res))
		}
		if err := state.update(res); err != nil {
			a.logger.Error("writing results", "error", err)
		}
	}

	a.logger.Info("watching logs", "count", watched)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchState keeps the latest result of every log for rewriting the results file.
type watchState struct {
	mu      sync.Mutex
	cfg     *config.Config
	results []batch.Result
}

func newWatchState(cfg *config.Config, results []batch.Result) *watchState {
	return &watchState{cfg: cfg, results: results}
}

func (s *watchState) update(res batch.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].Name == res.Name {
			s.results[i] = res
		}
	}
	return writeResults(s.cfg, s.results)
}

func (s *watchState) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeResults(s.cfg, s.results)
}

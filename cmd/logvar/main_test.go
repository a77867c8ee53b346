package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/logvar/pkg/config"
)

func TestSplitLabels(t *testing.T) {
	assert.Nil(t, splitLabels(""))
	assert.Equal(t, []string{"A", "B", "C"}, splitLabels("A, B,C"))
}

func TestLogSpecs(t *testing.T) {
	cfg := config.Default()

	_, err := logSpecs(cfg, nil)
	assert.Error(t, err, "no logs anywhere")

	cfg.Logs = []config.LogSpec{{Name: "cfg", Source: "cfg.xes"}}
	specs, err := logSpecs(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Logs, specs)

	specs, err = logSpecs(cfg, []string{"b=x/b.csv", "a.xes"})
	require.NoError(t, err)
	assert.Equal(t, []config.LogSpec{{Name: "b", Source: "x/b.csv"}, {Name: "a", Source: "a.xes"}}, specs)

	_, err = logSpecs(cfg, []string{"x/a.xes", "y/a.xes"})
	assert.Error(t, err, "duplicate names")
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variability:\n  workers: 3\n  chunk_size: 10\n"), 0o644))

	configPath = path
	defer func() { configPath = "" }()

	cmd := &cobra.Command{Use: "test"}
	addAnalysisFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--workers", "5", "--strategy", "shared", "--quiet"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Variability.Workers)
	assert.Equal(t, 10, cfg.Variability.ChunkSize)
	assert.Equal(t, "shared", cfg.Variability.Strategy)
	assert.False(t, cfg.Output.Terminal)

	require.NoError(t, cmd.ParseFlags([]string{"--strategy", "multiprocess"}))
	_, err = loadConfig(cmd)
	assert.Error(t, err)
}

func TestParserAndAggregatorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Parser.Delimiter = ";"
	cfg.Variability.Strategy = "sequential"

	assert.Equal(t, ';', parserConfig(cfg).Delimiter)
	agg, err := aggregatorConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, "sequential", agg.Strategy)
}

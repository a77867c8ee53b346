// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config file < env < flags
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	lverrors "github.com/logflow/logvar/pkg/errors"
)

// Config holds all logvar configuration.
type Config struct {
	Version int `yaml:"version"`

	// Logs is the ordered list of logs to analyze.
	Logs []LogSpec `yaml:"logs"`

	Variability VariabilityConfig `yaml:"variability"`
	Parser      ParserConfig      `yaml:"parser"`
	Output      OutputConfig      `yaml:"output"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	S3          S3Config          `yaml:"s3"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Batch       BatchConfig       `yaml:"batch"`
}

// LogSpec names one log and where to read it from.
type LogSpec struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// VariabilityConfig tunes the pairwise aggregation.
type VariabilityConfig struct {
	Workers      int           `yaml:"workers"`    // 0 = NumCPU
	ChunkSize    int           `yaml:"chunk_size"` // pairs per chunk
	Strategy     string        `yaml:"strategy"`   // sequential | parallel | shared
	MaxPairs     uint64        `yaml:"max_pairs"`  // 0 = unlimited
	CacheSize    int           `yaml:"cache_size"` // per cache; 0 = unbounded, <0 = off
	Deadline     time.Duration `yaml:"deadline"`   // per log; 0 = none
	SortVariants bool          `yaml:"sort_variants"`
}

// ParserConfig controls log parsing.
type ParserConfig struct {
	CaseKey      string `yaml:"case_key"`
	ActivityKey  string `yaml:"activity_key"`
	TimestampKey string `yaml:"timestamp_key"`
	ResourceKey  string `yaml:"resource_key"`
	Engine       string `yaml:"engine"` // native | duckdb
	BufferSize   int    `yaml:"buffer_size"`
	Delimiter    string `yaml:"delimiter"`
}

// OutputConfig controls where reports go.
type OutputConfig struct {
	Path     string `yaml:"path"`     // results file; "-" or "" for none
	Format   string `yaml:"format"`   // text | json
	Terminal bool   `yaml:"terminal"` // render a summary on stdout
	Progress bool   `yaml:"progress"` // pair-evaluation progress bar
}

// CheckpointConfig selects the report store.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // none | memory | redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig for the redis checkpoint backend.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// S3Config for s3:// log sources.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// TelemetryConfig for OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig for the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig for the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// BatchConfig controls multi-log runs.
type BatchConfig struct {
	ParallelLogs int  `yaml:"parallel_logs"`
	FailFast     bool `yaml:"fail_fast"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Variability: VariabilityConfig{
			Workers:      0,
			ChunkSize:    4096,
			Strategy:     "parallel",
			CacheSize:    1 << 20,
			SortVariants: true,
		},
		Parser: ParserConfig{
			CaseKey:      "case:concept:name",
			ActivityKey:  "concept:name",
			TimestampKey: "time:timestamp",
			ResourceKey:  "org:resource",
			Engine:       "native",
			BufferSize:   64 * 1024,
			Delimiter:    ",",
		},
		Output: OutputConfig{
			Path:     "results.txt",
			Format:   "text",
			Terminal: true,
			Progress: true,
		},
		Checkpoint: CheckpointConfig{
			Backend: "none",
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "logvar:reports:",
				TTL:     7 * 24 * time.Hour,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Endpoint:     "localhost:4317",
			ServiceName:  "logvar",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Batch: BatchConfig{
			ParallelLogs: 1,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded

	// searchPaths and getenv are replaceable for tests.
	searchPaths func() []string
	getenv      func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config:      Default(),
		searchPaths: defaultPaths,
		getenv:      os.Getenv,
	}
}

// Load loads configuration from all sources in priority order. explicit,
// when non-empty, is loaded after the search paths and must exist.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.searchPaths() {
		if err := m.loadFile(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	return m.loadEnv()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/logvar/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".logvar", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".logvar.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current configuration. Keys
// absent from the file keep their current values; lists are replaced.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return lverrors.Wrap(err, lverrors.CodeInvalidConfig, "read config file").WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, m.config); err != nil {
		return lverrors.Wrap(err, lverrors.CodeInvalidConfig, "parse config file").WithContext("path", path)
	}
	return nil
}

// loadEnv applies LOGVAR_* environment variables.
func (m *Manager) loadEnv() error {
	c := m.config
	var errs []error

	str := func(name string, dst *string) {
		if v := m.getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := m.getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := m.getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	num("LOGVAR_WORKERS", &c.Variability.Workers)
	num("LOGVAR_CHUNK_SIZE", &c.Variability.ChunkSize)
	str("LOGVAR_STRATEGY", &c.Variability.Strategy)
	num("LOGVAR_CACHE_SIZE", &c.Variability.CacheSize)
	if v := m.getenv("LOGVAR_MAX_PAIRS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOGVAR_MAX_PAIRS: %w", err))
		} else {
			c.Variability.MaxPairs = n
		}
	}
	if v := m.getenv("LOGVAR_DEADLINE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOGVAR_DEADLINE: %w", err))
		} else {
			c.Variability.Deadline = d
		}
	}

	str("LOGVAR_ENGINE", &c.Parser.Engine)
	str("LOGVAR_ACTIVITY_KEY", &c.Parser.ActivityKey)
	str("LOGVAR_OUTPUT", &c.Output.Path)
	str("LOGVAR_OUTPUT_FORMAT", &c.Output.Format)
	str("LOGVAR_CHECKPOINT", &c.Checkpoint.Backend)
	str("LOGVAR_REDIS_ADDR", &c.Checkpoint.Redis.Address)
	str("LOGVAR_REDIS_PASSWORD", &c.Checkpoint.Redis.Password)
	str("LOGVAR_S3_REGION", &c.S3.Region)
	str("LOGVAR_S3_ENDPOINT", &c.S3.Endpoint)
	boolean("LOGVAR_TELEMETRY", &c.Telemetry.Enabled)
	str("LOGVAR_OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	boolean("LOGVAR_METRICS", &c.Metrics.Enabled)
	str("LOGVAR_METRICS_ADDR", &c.Metrics.Address)
	str("LOGVAR_LOG_LEVEL", &c.Logging.Level)
	str("LOGVAR_LOG_FORMAT", &c.Logging.Format)
	num("LOGVAR_PARALLEL_LOGS", &c.Batch.ParallelLogs)
	boolean("LOGVAR_FAIL_FAST", &c.Batch.FailFast)

	if len(errs) > 0 {
		return lverrors.Wrap(errors.Join(errs...), lverrors.CodeInvalidConfig, "invalid environment variable")
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Validate rejects settings no component can honor.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Variability.Workers < 0 {
		fail("variability.workers must be >= 0, got %d", c.Variability.Workers)
	}
	if c.Variability.ChunkSize < 0 {
		fail("variability.chunk_size must be >= 0, got %d", c.Variability.ChunkSize)
	}
	if c.Variability.Deadline < 0 {
		fail("variability.deadline must be >= 0, got %s", c.Variability.Deadline)
	}
	switch c.Variability.Strategy {
	case "", "sequential", "parallel", "shared":
	default:
		fail("variability.strategy %q is not one of sequential, parallel, shared", c.Variability.Strategy)
	}
	switch c.Parser.Engine {
	case "", "native", "duckdb":
	default:
		fail("parser.engine %q is not one of native, duckdb", c.Parser.Engine)
	}
	if len([]rune(c.Parser.Delimiter)) > 1 {
		fail("parser.delimiter must be a single character, got %q", c.Parser.Delimiter)
	}
	switch c.Output.Format {
	case "", "text", "json":
	default:
		fail("output.format %q is not one of text, json", c.Output.Format)
	}
	switch c.Checkpoint.Backend {
	case "", "none", "memory", "redis":
	default:
		fail("checkpoint.backend %q is not one of none, memory, redis", c.Checkpoint.Backend)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		fail("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		fail("logging.format %q is not one of text, json", c.Logging.Format)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		fail("telemetry.sampling_rate must be within [0,1], got %g", c.Telemetry.SamplingRate)
	}
	if c.Batch.ParallelLogs < 0 {
		fail("batch.parallel_logs must be >= 0, got %d", c.Batch.ParallelLogs)
	}

	seen := make(map[string]bool, len(c.Logs))
	for i, l := range c.Logs {
		if l.Name == "" || l.Source == "" {
			fail("logs[%d] needs a name and a source", i)
			continue
		}
		if seen[l.Name] {
			fail("logs[%d]: duplicate log name %q", i, l.Name)
		}
		seen[l.Name] = true
	}

	if len(errs) > 0 {
		return lverrors.New(lverrors.CodeInvalidConfig, "invalid configuration: "+strings.Join(errs, "; "))
	}
	return nil
}

// ParseLogSpec parses a command-line log argument. "name=source" sets both;
// a bare source is named after its file name without extensions.
func ParseLogSpec(arg string) (LogSpec, error) {
	if name, src, ok := strings.Cut(arg, "="); ok && !strings.Contains(name, "/") {
		if name == "" || src == "" {
			return LogSpec{}, lverrors.New(lverrors.CodeInvalidConfig, "log argument needs name=source").
				WithContext("arg", arg)
		}
		return LogSpec{Name: name, Source: src}, nil
	}
	if arg == "" {
		return LogSpec{}, lverrors.New(lverrors.CodeInvalidConfig, "empty log argument")
	}
	base := filepath.Base(strings.TrimPrefix(arg, "s3://"))
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return LogSpec{Name: base, Source: arg}, nil
}

// Package metrics exposes Prometheus metrics for variability runs.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	lverrors "github.com/logflow/logvar/pkg/errors"
)

// Log outcomes.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusCached = "cached"
)

// Registry holds all logvar metrics.
type Registry struct {
	LogsTotal       *prometheus.CounterVec
	LogDuration     *prometheus.HistogramVec
	FailuresTotal   *prometheus.CounterVec
	LogsInFlight    prometheus.Gauge
	PairsTotal      prometheus.Counter
	VariantsPerLog  prometheus.Histogram
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter
	CheckpointOps   *prometheus.CounterVec
	LastEditDist    *prometheus.GaugeVec
	LastEntropy     *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.LogsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "logvar_logs_total",
		Help: "Logs processed, by outcome",
	}, []string{"status"})

	r.LogDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logvar_log_stage_duration_seconds",
		Help:    "Time spent per log in each stage",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60, 300},
	}, []string{"stage"})

	r.FailuresTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "logvar_failures_total",
		Help: "Failed logs, by error class and code",
	}, []string{"class", "code"})

	r.LogsInFlight = f.NewGauge(prometheus.GaugeOpts{
		Name: "logvar_logs_in_flight",
		Help: "Logs currently being processed",
	})

	r.PairsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "logvar_variant_pairs_total",
		Help: "Variant pairs evaluated",
	})

	r.VariantsPerLog = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "logvar_variants_per_log",
		Help:    "Distinct variants per analyzed log",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	r.CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "logvar_distance_cache_hits_total",
		Help: "Edit distance cache hits",
	})
	r.CacheMissTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "logvar_distance_cache_misses_total",
		Help: "Edit distance cache misses",
	})

	r.CheckpointOps = f.NewCounterVec(prometheus.CounterOpts{
		Name: "logvar_checkpoint_operations_total",
		Help: "Checkpoint store operations, by operation and result",
	}, []string{"op", "result"})

	r.LastEditDist = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logvar_edit_distance_variability",
		Help: "Most recent weighted average edit distance per log",
	}, []string{"log"})
	r.LastEntropy = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logvar_activity_entropy_bits",
		Help: "Most recent activity entropy per log",
	}, []string{"log"})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// RecordStage observes the duration of one stage of a log.
func (r *Registry) RecordStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.LogDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordReport records a successfully analyzed log.
func (r *Registry) RecordReport(log string, variants int, pairs uint64, editDistance, entropy float64, cached bool) {
	if r == nil {
		return
	}
	if cached {
		r.LogsTotal.WithLabelValues(StatusCached).Inc()
	} else {
		r.LogsTotal.WithLabelValues(StatusOK).Inc()
		r.PairsTotal.Add(float64(pairs))
		r.VariantsPerLog.Observe(float64(variants))
	}
	r.LastEditDist.WithLabelValues(log).Set(editDistance)
	r.LastEntropy.WithLabelValues(log).Set(entropy)
}

// RecordFailure records a failed log.
func (r *Registry) RecordFailure(err error) {
	if r == nil {
		return
	}
	code := lverrors.GetCode(err)
	r.LogsTotal.WithLabelValues(StatusFailed).Inc()
	r.FailuresTotal.WithLabelValues(string(code.Class()), string(code)).Inc()
}

// RecordCache adds cache lookups observed during one aggregation.
func (r *Registry) RecordCache(hits, misses uint64) {
	if r == nil {
		return
	}
	r.CacheHitsTotal.Add(float64(hits))
	r.CacheMissTotal.Add(float64(misses))
}

// RecordCheckpoint counts a checkpoint store operation.
func (r *Registry) RecordCheckpoint(op, result string) {
	if r == nil {
		return
	}
	r.CheckpointOps.WithLabelValues(op, result).Inc()
}

// InFlight adjusts the in-flight gauge and returns the matching decrement.
func (r *Registry) InFlight() func() {
	if r == nil {
		return func() {}
	}
	r.LogsInFlight.Inc()
	return r.LogsInFlight.Dec
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Server serves /metrics until its context is canceled.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and returns a server ready to Serve.
func (r *Registry) Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeInvalidConfig, "listen for metrics").WithContext("addr", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

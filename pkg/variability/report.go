package variability

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// Metric names as they appear in rendered reports.
const (
	MetricUniqueActivities = "Unique activities"
	MetricVariants         = "Variants"
	MetricEditDistance     = "Edit Distance Variability"
	MetricEntropy          = "Custom Variability (Entropy)"
	MetricTraces           = "Traces"
	MetricEvents           = "Events"
)

// Report holds the variability metrics of one log. Builder returns it by
// value; nothing retains a reference to it.
type Report struct {
	Name string `json:"name"`

	Variants          int     `json:"variants"`
	EditDistance      float64 `json:"edit_distance"`
	Entropy           float64 `json:"entropy"`
	NormalizedEntropy float64 `json:"normalized_entropy"`
	UniqueActivities  int     `json:"unique_activities"`
	Traces            int     `json:"traces"`
	Events            int     `json:"events"`

	// EditDistanceUndefined marks the 0 sentinel for logs with fewer than
	// two variants; EntropyUndefined marks it for logs without events.
	EditDistanceUndefined bool `json:"edit_distance_undefined,omitempty"`
	EntropyUndefined      bool `json:"entropy_undefined,omitempty"`

	Pairs    uint64        `json:"pairs"`
	Duration time.Duration `json:"duration"`
}

// Metric is one named value of a report, formatted for display.
type Metric struct {
	Name  string
	Value string
}

// Metrics returns the report's metrics in display order.
func (r Report) Metrics() []Metric {
	return []Metric{
		{MetricUniqueActivities, strconv.Itoa(r.UniqueActivities)},
		{MetricVariants, strconv.Itoa(r.Variants)},
		{MetricEditDistance, formatFloat(r.EditDistance)},
		{MetricEntropy, formatFloat(r.Entropy)},
		{MetricTraces, strconv.Itoa(r.Traces)},
		{MetricEvents, strconv.Itoa(r.Events)},
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ValidateLog rejects logs the engine cannot analyze: a nil log and logs
// containing a trace without events. An empty trace would enter the
// frequency tables as a variant of length zero, so it is never skipped.
func ValidateLog(log *model.Log) error {
	if log == nil {
		return lverrors.New(lverrors.CodeInvalidLog, "log is nil")
	}
	for i := range log.Traces {
		if len(log.Traces[i].Events) == 0 {
			return lverrors.EmptyTrace(i, log.Traces[i].CaseID).WithContext("log", log.Name)
		}
	}
	return nil
}

// Builder assembles variability reports. It is safe for concurrent use if
// its Aggregator is (Aggregate calls are serialized per Aggregator).
type Builder struct {
	agg    *Aggregator
	logger *slog.Logger
}

// NewBuilder creates a report builder around an aggregator.
func NewBuilder(agg *Aggregator, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{agg: agg, logger: logger}
}

// Aggregator returns the builder's aggregator.
func (b *Builder) Aggregator() *Aggregator {
	return b.agg
}

// Build computes the report of one log. The log is only read.
func (b *Builder) Build(ctx context.Context, name string, log *model.Log) (Report, error) {
	if name == "" {
		return Report{}, lverrors.New(lverrors.CodeInvalidLog, "log name is empty")
	}
	if err := ValidateLog(log); err != nil {
		return Report{}, err
	}

	start := time.Now()

	variants := ExtractVariants(log)
	activities := CountActivities(log)

	agg, err := b.agg.Aggregate(ctx, variants)
	if err != nil {
		return Report{}, fmt.Errorf("log %q: %w", name, err)
	}

	r := Report{
		Name:                  name,
		Variants:              variants.Len(),
		EditDistance:          agg.WeightedAverage,
		EditDistanceUndefined: agg.Undefined,
		Entropy:               activities.Entropy(),
		NormalizedEntropy:     activities.NormalizedEntropy(),
		EntropyUndefined:      activities.Total == 0,
		UniqueActivities:      activities.Distinct(),
		Traces:                variants.TraceCount(),
		Events:                activities.Total,
		Pairs:                 agg.Pairs,
		Duration:              time.Since(start),
	}

	b.logger.Debug("built variability report",
		"log", name,
		"variants", r.Variants,
		"pairs", r.Pairs,
		"edit_distance", r.EditDistance,
		"entropy", r.Entropy,
		"duration", r.Duration)

	return r, nil
}

package parser

import (
	"sort"

	"github.com/logflow/logvar/internal/model"
	lverrors "github.com/logflow/logvar/pkg/errors"
)

// columns maps the configured keys to positions in a tabular header.
// Optional columns are -1 when absent.
type columns struct {
	caseIdx, activityIdx, timestampIdx, resourceIdx int
}

// resolveColumns locates the configured columns in header. The case and
// activity columns are required.
func resolveColumns(cfg Config, header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	lookup := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}

	c := columns{
		caseIdx:      lookup(cfg.CaseKey),
		activityIdx:  lookup(cfg.ActivityKey),
		timestampIdx: lookup(cfg.TimestampKey),
		resourceIdx:  lookup(cfg.ResourceKey),
	}
	if c.caseIdx < 0 {
		return c, lverrors.MissingColumn(cfg.CaseKey, header)
	}
	if c.activityIdx < 0 {
		return c, lverrors.MissingColumn(cfg.ActivityKey, header)
	}
	return c, nil
}

// field returns row[i], or "" when the row is short or i < 0.
func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// traceBuilder groups tabular events into traces. Cases keep the order in
// which they first appear. Within a case, timestamped events are ordered by
// time among the positions they occupy; ties and untimed events keep file
// order.
type traceBuilder struct {
	byCase map[string]int
	traces []model.Trace
	timed  [][]bool
	sorted bool
	rows   int
}

func newTraceBuilder(sortByTime bool) *traceBuilder {
	return &traceBuilder{byCase: make(map[string]int), sorted: sortByTime}
}

func (b *traceBuilder) add(caseID string, e model.Event, timed bool) {
	b.rows++
	idx, ok := b.byCase[caseID]
	if !ok {
		idx = len(b.traces)
		b.byCase[caseID] = idx
		b.traces = append(b.traces, model.Trace{CaseID: caseID})
		b.timed = append(b.timed, nil)
	}
	b.traces[idx].Events = append(b.traces[idx].Events, e)
	b.timed[idx] = append(b.timed[idx], timed)
}

// addRow converts one tabular row. Rows without a case id or activity are
// rejected.
func (b *traceBuilder) addRow(cols columns, row []string, line int) error {
	caseID := field(row, cols.caseIdx)
	if caseID == "" {
		return lverrors.New(lverrors.CodeInvalidFormat, "row without case id").
			WithContext("row", line)
	}

	e := model.Event{
		Activity: field(row, cols.activityIdx),
		Resource: field(row, cols.resourceIdx),
	}
	if e.Activity == "" {
		return lverrors.New(lverrors.CodeInvalidFormat, "row without activity").
			WithContext("row", line).
			WithContext("case", caseID)
	}
	timed := false
	if ts := field(row, cols.timestampIdx); ts != "" {
		nanos, err := parseTimestamp(ts)
		if err != nil {
			return lverrors.Wrap(err, lverrors.CodeInvalidFormat, "invalid timestamp").
				WithContext("row", line).
				WithContext("value", ts)
		}
		e.Timestamp = nanos
		timed = true
	}
	b.add(caseID, e, timed)
	return nil
}

func (b *traceBuilder) build(name string) *model.Log {
	if b.sorted {
		for i := range b.traces {
			sortTimed(b.traces[i].Events, b.timed[i])
		}
	}
	return &model.Log{Name: name, Traces: b.traces}
}

// sortTimed stably orders the timestamped events of a trace by time, writing
// them back into the slots they came from. Untimed events do not move.
func sortTimed(events []model.Event, timed []bool) {
	slots := make([]int, 0, len(events))
	for i, ok := range timed {
		if ok {
			slots = append(slots, i)
		}
	}
	if len(slots) < 2 {
		return
	}
	picked := make([]model.Event, len(slots))
	for k, i := range slots {
		picked[k] = events[i]
	}
	sort.SliceStable(picked, func(x, y int) bool {
		return picked[x].Timestamp < picked[y].Timestamp
	})
	for k, i := range slots {
		events[i] = picked[k]
	}
}


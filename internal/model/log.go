// Package model defines the in-memory event log representation shared by
// parsers and the variability engine.
package model

import "strconv"

// Event is a single recorded activity occurrence inside a trace.
// Only Activity participates in variability metrics; the remaining fields
// are payload kept for ordering and diagnostics.
type Event struct {
	// Activity is the event name/activity label (XES concept:name).
	Activity string

	// Timestamp in nanoseconds since Unix epoch, 0 when the source has none.
	Timestamp int64

	// Resource is the actor/resource performing the activity.
	Resource string
}

// Trace is one recorded process execution: an ordered sequence of events.
type Trace struct {
	// CaseID identifies the process instance. May be empty for XES traces
	// without a concept:name attribute.
	CaseID string

	Events []Event
}

// Len returns the number of events in the trace.
func (t *Trace) Len() int {
	return len(t.Events)
}

// Activities returns the activity labels of the trace in order.
func (t *Trace) Activities() []string {
	labels := make([]string, len(t.Events))
	for i := range t.Events {
		labels[i] = t.Events[i].Activity
	}
	return labels
}

// Log is an ordered collection of traces. The variability engine only
// reads a Log; it is owned by whoever parsed it.
type Log struct {
	Name   string
	Traces []Trace
}

// TraceCount returns the number of traces.
func (l *Log) TraceCount() int {
	return len(l.Traces)
}

// EventCount returns the total number of (trace, position) events.
func (l *Log) EventCount() int {
	n := 0
	for i := range l.Traces {
		n += len(l.Traces[i].Events)
	}
	return n
}

// FromActivities builds a Log from plain label sequences. Case ids are
// assigned positionally ("1", "2", ...). Mostly useful for tests.
func FromActivities(name string, traces ...[]string) *Log {
	l := &Log{Name: name, Traces: make([]Trace, len(traces))}
	for i, labels := range traces {
		events := make([]Event, len(labels))
		for j, a := range labels {
			events[j] = Event{Activity: a}
		}
		l.Traces[i] = Trace{CaseID: strconv.Itoa(i + 1), Events: events}
	}
	return l
}

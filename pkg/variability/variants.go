// Package variability computes behavioral variability metrics over event logs:
// the number of variants, the frequency-weighted average edit distance between
// variants, and the Shannon entropy of activity occurrences.
package variability

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/logflow/logvar/internal/model"
)

// Variant is a distinct control-flow shape shared by one or more traces.
type Variant struct {
	// Labels is the activity sequence, in trace order.
	Labels []string

	// Key is the canonical serialized form of Labels. Two variants are equal
	// iff their keys are equal.
	Key string

	// Frequency is the number of traces with this shape.
	Frequency int

	// symbols are the labels interned to dense ids local to the table.
	symbols []int32
}

// Len returns the number of activities in the variant.
func (v *Variant) Len() int {
	return len(v.Labels)
}

// String renders the variant as a comma-separated label list.
func (v *Variant) String() string {
	return "(" + strings.Join(v.Labels, ",") + ")"
}

// VariantTable maps every variant of a log to its frequency.
// Variants are kept in order of first appearance.
type VariantTable struct {
	Variants []Variant

	index    map[string]int
	alphabet map[string]int32
	traces   int
}

// ExtractVariants collapses the traces of a log into variants in one pass.
// Only activity labels are considered; an empty log yields an empty table.
func ExtractVariants(log *model.Log) *VariantTable {
	t := &VariantTable{
		index:    make(map[string]int),
		alphabet: make(map[string]int32),
	}
	if log == nil {
		return t
	}

	var buf []byte
	for i := range log.Traces {
		tr := &log.Traces[i]
		buf = appendKey(buf[:0], tr.Events)
		t.traces++

		if idx, ok := t.index[string(buf)]; ok {
			t.Variants[idx].Frequency++
			continue
		}

		labels := tr.Activities()
		v := Variant{
			Labels:    labels,
			Key:       string(buf),
			Frequency: 1,
			symbols:   make([]int32, len(labels)),
		}
		for j, l := range labels {
			v.symbols[j] = t.intern(l)
		}
		t.index[v.Key] = len(t.Variants)
		t.Variants = append(t.Variants, v)
	}

	return t
}

// appendKey serializes labels with a length prefix per label so that no
// label content can collide with a separator.
func appendKey(buf []byte, events []model.Event) []byte {
	for i := range events {
		buf = binary.AppendUvarint(buf, uint64(len(events[i].Activity)))
		buf = append(buf, events[i].Activity...)
	}
	return buf
}

// VariantKey returns the canonical key for a label sequence.
func VariantKey(labels []string) string {
	var buf []byte
	for _, l := range labels {
		buf = binary.AppendUvarint(buf, uint64(len(l)))
		buf = append(buf, l...)
	}
	return string(buf)
}

func (t *VariantTable) intern(label string) int32 {
	if id, ok := t.alphabet[label]; ok {
		return id
	}
	id := int32(len(t.alphabet))
	t.alphabet[label] = id
	return id
}

// Len returns the number of distinct variants.
func (t *VariantTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Variants)
}

// TraceCount returns the number of traces the table was built from.
// It always equals the sum of all variant frequencies.
func (t *VariantTable) TraceCount() int {
	return t.traces
}

// Frequency returns how many traces follow the given label sequence.
func (t *VariantTable) Frequency(labels []string) int {
	if idx, ok := t.index[VariantKey(labels)]; ok {
		return t.Variants[idx].Frequency
	}
	return 0
}

// ByFrequency returns the variants ordered by descending frequency, ties
// broken by key so the order is stable across runs.
func (t *VariantTable) ByFrequency() []*Variant {
	out := make([]*Variant, len(t.Variants))
	for i := range t.Variants {
		out[i] = &t.Variants[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Key < out[j].Key
	})
	return out
}

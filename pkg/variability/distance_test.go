package variability

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"both empty", nil, nil, 0},
		{"empty vs one", nil, []string{"A"}, 1},
		{"identical", []string{"A", "B", "C"}, []string{"A", "B", "C"}, 0},
		{"swap", []string{"A", "B", "C"}, []string{"A", "C", "B"}, 2},
		{"insert", []string{"A", "C"}, []string{"A", "B", "C"}, 1},
		{"delete", []string{"A", "B", "C"}, []string{"A", "C"}, 1},
		{"substitute", []string{"A", "B", "C"}, []string{"A", "X", "C"}, 1},
		{"disjoint", []string{"A", "B"}, []string{"C", "D", "E"}, 3},
		{"word level", []string{"kitten"}, []string{"sitting"}, 1},
		{"labels with separators", []string{"a,b"}, []string{"a", "b"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EditDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("EditDistance(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// fullTable is the textbook (n+1)x(m+1) formulation, used as an oracle for
// the trimmed two-row implementation.
func fullTable(a, b []string) int {
	d := make([][]int, len(a)+1)
	for i := range d {
		d[i] = make([]int, len(b)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j-1]+cost, d[i-1][j]+1, d[i][j-1]+1)
		}
	}
	return d[len(a)][len(b)]
}

func labelSeq() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf("A", "B", "C", "D"))
}

func TestEditDistanceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.MaxSize = 12
	properties := gopter.NewProperties(parameters)

	properties.Property("identity", prop.ForAll(
		func(a []string) bool {
			return EditDistance(a, a) == 0
		},
		labelSeq(),
	))

	properties.Property("symmetry", prop.ForAll(
		func(a, b []string) bool {
			return EditDistance(a, b) == EditDistance(b, a)
		},
		labelSeq(), labelSeq(),
	))

	properties.Property("triangle inequality", prop.ForAll(
		func(a, b, c []string) bool {
			return EditDistance(a, c) <= EditDistance(a, b)+EditDistance(b, c)
		},
		labelSeq(), labelSeq(), labelSeq(),
	))

	properties.Property("matches full table", prop.ForAll(
		func(a, b []string) bool {
			return EditDistance(a, b) == fullTable(a, b)
		},
		labelSeq(), labelSeq(),
	))

	properties.Property("bounded by longer length", prop.ForAll(
		func(a, b []string) bool {
			return EditDistance(a, b) <= max(len(a), len(b))
		},
		labelSeq(), labelSeq(),
	))

	properties.TestingRun(t)
}

func BenchmarkEditDistance(b *testing.B) {
	x := []string{"register", "check", "decide", "pay", "archive", "notify", "close"}
	y := []string{"register", "decide", "check", "reject", "notify", "archive"}
	for i := 0; i < b.N; i++ {
		EditDistance(x, y)
	}
}

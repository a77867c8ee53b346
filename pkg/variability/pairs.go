package variability

import (
	"math/big"
	"math/bits"
)

// PairCount returns the number of unordered pairs of n distinct variants.
func PairCount(n int) uint64 {
	if n < 2 {
		return 0
	}
	return uint64(n) * uint64(n-1) / 2
}

// PairRange is a half-open range [Start, End) of linear pair indices.
// Pairs are numbered row-major over i < j: (0,1), (0,2), ... (0,n-1), (1,2), ...
type PairRange struct {
	Start, End uint64
}

// Len returns the number of pairs in the range.
func (r PairRange) Len() uint64 {
	return r.End - r.Start
}

// SplitPairs partitions all pairs of n variants into consecutive ranges of at
// most chunkSize pairs. Every pair lands in exactly one range.
func SplitPairs(n int, chunkSize uint64) []PairRange {
	total := PairCount(n)
	if total == 0 {
		return nil
	}
	if chunkSize == 0 || chunkSize > total {
		chunkSize = total
	}

	ranges := make([]PairRange, 0, (total+chunkSize-1)/chunkSize)
	for start := uint64(0); start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		ranges = append(ranges, PairRange{Start: start, End: end})
	}
	return ranges
}

// pairAt maps a linear pair index back to (i, j) with i < j.
func pairAt(n int, k uint64) (int, int) {
	i := 0
	for row := uint64(n - 1); k >= row; row-- {
		k -= row
		i++
	}
	return i, i + 1 + int(k)
}

// pairCursor walks pairs in linear order starting at some index.
type pairCursor struct {
	n, i, j int
}

func newPairCursor(n int, start uint64) pairCursor {
	i, j := pairAt(n, start)
	return pairCursor{n: n, i: i, j: j}
}

func (c *pairCursor) next() {
	c.j++
	if c.j >= c.n {
		c.i++
		c.j = c.i + 1
	}
}

// Sum128 is an unsigned 128-bit accumulator. Integer accumulation keeps the
// weighted average identical no matter how pairs are chunked or scheduled.
type Sum128 struct {
	Hi, Lo uint64
}

// Add adds v.
func (s *Sum128) Add(v uint64) {
	var carry uint64
	s.Lo, carry = bits.Add64(s.Lo, v, 0)
	s.Hi += carry
}

// AddProduct adds a*b.
func (s *Sum128) AddProduct(a, b uint64) {
	hi, lo := bits.Mul64(a, b)
	var carry uint64
	s.Lo, carry = bits.Add64(s.Lo, lo, 0)
	s.Hi += hi + carry
}

// Merge adds another sum.
func (s *Sum128) Merge(o Sum128) {
	var carry uint64
	s.Lo, carry = bits.Add64(s.Lo, o.Lo, 0)
	s.Hi += o.Hi + carry
}

// IsZero reports whether the sum is zero.
func (s Sum128) IsZero() bool {
	return s.Hi == 0 && s.Lo == 0
}

// Big converts the sum to a big.Int.
func (s Sum128) Big() *big.Int {
	v := new(big.Int).SetUint64(s.Hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(s.Lo))
}

// partial is the contribution of one chunk of pairs.
type partial struct {
	weighted Sum128 // Σ distance × freq(a) × freq(b)
	weight   Sum128 // Σ freq(a) × freq(b)
	pairs    uint64
}

func (p *partial) merge(o partial) {
	p.weighted.Merge(o.weighted)
	p.weight.Merge(o.weight)
	p.pairs += o.pairs
}

// evalRange accumulates all pairs of r. cache may be nil.
func evalRange(vs []*Variant, r PairRange, cache DistanceCache) partial {
	var p partial
	if r.Len() == 0 {
		return p
	}

	c := newPairCursor(len(vs), r.Start)
	for k := r.Start; k < r.End; k++ {
		a, b := vs[c.i], vs[c.j]
		d := pairDistance(a, b, cache)
		w := uint64(a.Frequency) * uint64(b.Frequency)
		p.weighted.AddProduct(w, uint64(d))
		p.weight.Add(w)
		p.pairs++
		c.next()
	}
	return p
}

func pairDistance(a, b *Variant, cache DistanceCache) int {
	if cache == nil {
		return levenshtein(a.symbols, b.symbols)
	}
	key := MakePairKey(a.Key, b.Key)
	if d, ok := cache.Get(key); ok {
		return d
	}
	d := levenshtein(a.symbols, b.symbols)
	cache.Put(key, d)
	return d
}

package variability

// EditDistance returns the minimum number of label insertions, deletions or
// substitutions turning a into b. Labels are compared whole, never by
// character.
func EditDistance(a, b []string) int {
	return levenshtein(a, b)
}

// levenshtein is the classic dynamic-programming edit distance. Only two rows
// of the (len(a)+1) x (len(b)+1) table are kept, and a shared prefix and
// suffix are stripped first; neither changes the result.
func levenshtein[T comparable](a, b []T) int {
	for len(a) > 0 && len(b) > 0 && a[0] == b[0] {
		a, b = a[1:], b[1:]
	}
	for len(a) > 0 && len(b) > 0 && a[len(a)-1] == b[len(b)-1] {
		a, b = a[:len(a)-1], b[:len(b)-1]
	}

	// Keep the row along the shorter sequence.
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j-1]+cost, // substitution
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

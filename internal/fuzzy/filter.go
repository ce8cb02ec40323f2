package fuzzy

// Options configures Filter.
type Options struct {
	// Unifying lists the extra runes that count as word runes.
	Unifying string

	// LookAhead is passed to Ratio.
	LookAhead int

	// Cutoff is the minimum Ratio for a candidate to pass.
	Cutoff float64
}

// Filter returns the candidates whose sort key scores at least opts.Cutoff
// against the token it would replace in lineBefore, keeping their order.
func Filter[T any](lineBefore string, candidates []T, sortKey func(T) string, opts Options) []T {
	out := make([]T, 0, len(candidates))
	for _, c := range candidates {
		key := sortKey(c)
		token := CwordBefore(opts.Unifying, true, lineBefore, key)
		if Ratio(token, Lower(key), opts.LookAhead) >= opts.Cutoff {
			out = append(out, c)
		}
	}
	return out
}

// Package fuzzy scores completion candidates against the token before the
// cursor.
//
// The score is a multiset ratio: the fraction of characters the token and
// the candidate's sort key have in common, looking at most lookAhead
// characters past the shorter of the two. It ignores order, so transposed
// keystrokes still match, and it never depends on a cutoff, so raising the
// cutoff can only shrink the set of accepted candidates.
//
// # Usage
//
//	token := fuzzy.CwordBefore(unifying, true, lineBefore, item.SortBy)
//	if fuzzy.Ratio(token, fuzzy.Lower(item.SortBy), lookAhead) >= cutoff {
//	    // accept
//	}
//
// Lower case-folds with golang.org/x/text and memoizes recent results,
// since the same sort keys are folded on every keystroke.
package fuzzy

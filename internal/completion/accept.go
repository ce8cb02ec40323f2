package completion

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/stormcomplete/internal/fuzzy"
)

// MatchOptions are the fuzzy matching knobs shared by workers and caches.
type MatchOptions struct {
	// UnifyingChars are extra runes treated as part of a word.
	UnifyingChars string

	MaxResults  int
	LookAhead   int
	FuzzyCutoff float64
}

// Accept reports whether a live item should be surfaced for ctx.
//
// The token before the cursor must be comparable to the item's sort key
// and score at least the fuzzy cutoff. Items whose plain text is already
// typed out in full are held back, since accepting them changes nothing;
// snippets, items with secondary edits and items with a provider origin
// are kept because accepting them does more than insert text.
func Accept(match MatchOptions, ctx Context, item Item) bool {
	cword := fuzzy.CwordBefore(match.UnifyingChars, true, ctx.LineBefore, item.SortBy)

	if utf8.RuneCountInString(item.SortBy)+match.LookAhead < utf8.RuneCountInString(cword) {
		return false
	}

	ratio := fuzzy.Ratio(cword, fuzzy.Lower(item.SortBy), match.LookAhead)
	if ratio < match.FuzzyCutoff {
		return false
	}

	return item.PrimaryEdit.Snippet() ||
		len(item.SecondaryEdits) > 0 ||
		item.Extern != nil ||
		!strings.HasPrefix(cword, item.PrimaryEdit.NewText)
}

// Sanitize re-anchors an item stored for an earlier keystroke to cursor.
//
// Plain edits are kept as they are. A range edit must start on the cursor
// row, at or before the cursor; its end is moved to the cursor. With shift,
// edits ending after the cursor or on later rows are kept and only edits
// ending before the cursor are extended to it. ok is false when the item no
// longer applies.
func Sanitize(cursor Cursor, item Item, shift bool) (Item, bool) {
	e := item.PrimaryEdit
	if !e.Ranged() {
		return item, true
	}

	col := cursor.Col(e.Encoding)
	if e.Begin.Row != cursor.Row || e.Begin.Col > col {
		return Item{}, false
	}

	end := Pos{Row: cursor.Row, Col: col}
	if shift {
		if e.End.Row > cursor.Row || (e.End.Row == cursor.Row && e.End.Col > col) {
			end = e.End
		}
	} else if e.End.Row != cursor.Row {
		return Item{}, false
	}

	e.End = end
	e.CursorPos = col
	item.PrimaryEdit = e
	return item, true
}

package fuzzy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsWord reports whether r belongs to a word: letters, digits and any of
// the unifying characters.
func IsWord(unifying string, r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(unifying, r)
}

// CwordBefore returns the token immediately before the cursor that a
// candidate with the given sort key would replace. The token class follows
// the key's first rune: a whitespace run for whitespace, a word run for word
// runes, otherwise the run of non-space runes. When lower is set the token
// is case-folded.
func CwordBefore(unifying string, lower bool, lineBefore, sortBy string) string {
	first, _ := utf8.DecodeRuneInString(sortBy)

	var keep func(rune) bool
	switch {
	case sortBy != "" && unicode.IsSpace(first):
		keep = unicode.IsSpace
	case sortBy != "" && IsWord(unifying, first):
		keep = func(r rune) bool { return IsWord(unifying, r) }
	default:
		keep = func(r rune) bool { return !unicode.IsSpace(r) }
	}

	i := len(lineBefore)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(lineBefore[:i])
		if !keep(r) {
			break
		}
		i -= size
	}

	token := lineBefore[i:]
	if lower {
		return Lower(token)
	}
	return token
}

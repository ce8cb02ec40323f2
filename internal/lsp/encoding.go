package lsp

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Encoding is the unit a provider measures text offsets in.
type Encoding string

// Supported offset encodings.
const (
	UTF8  Encoding = "UTF-8"
	UTF16 Encoding = "UTF-16-LE"
	UTF32 Encoding = "UTF-32-LE"
)

// ParseEncoding maps a provider's declared offset encoding ("utf-8", "utf16",
// "UTF-32", ...) to an Encoding. Unknown or empty names default to UTF16, the
// LSP default.
func ParseEncoding(s string) Encoding {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "")
	switch strings.TrimSuffix(name, "le") {
	case "utf8":
		return UTF8
	case "utf32":
		return UTF32
	default:
		return UTF16
	}
}

// Len returns the length of s in this encoding's code units.
func (e Encoding) Len(s string) int {
	switch e {
	case UTF8:
		return len(s)
	case UTF32:
		return utf8.RuneCountInString(s)
	default:
		return utf16LenForString(s)
	}
}

// Offset converts a byte offset within line to this encoding's code units.
// Offsets past the end of line clamp to the line length.
func (e Encoding) Offset(line string, byteOff int) int {
	if byteOff <= 0 {
		return 0
	}
	if byteOff >= len(line) {
		return e.Len(line)
	}
	return e.Len(line[:byteOff])
}

func utf16LenForString(s string) int {
	count := 0
	for _, r := range s {
		count += utf16.RuneLen(r)
	}
	return count
}

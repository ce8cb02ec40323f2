package completion

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dshills/stormcomplete/internal/lsp"
)

// Cursor is the cursor column measured in every offset encoding a provider
// may use. Row is zero-based.
type Cursor struct {
	Row   int `msgpack:"row" json:"row"`
	Byte  int `msgpack:"byte" json:"byte"`
	UTF16 int `msgpack:"utf16" json:"utf16"`
	UTF32 int `msgpack:"utf32" json:"utf32"`
}

// Col returns the cursor column in enc's code units.
func (c Cursor) Col(enc lsp.Encoding) int {
	switch enc {
	case lsp.UTF8:
		return c.Byte
	case lsp.UTF32:
		return c.UTF32
	default:
		return c.UTF16
	}
}

// MarshalJSON encodes the cursor as [row, byte, utf16, utf32], the shape
// providers receive.
func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{c.Row, c.Byte, c.UTF16, c.UTF32})
}

// Context is the editor state a completion request is made for.
type Context struct {
	Manual   bool
	ChangeID uuid.UUID

	BufID    int
	Filetype string
	Filename string

	// Row is zero-based; Col is a byte offset into Line.
	Row int
	Col int

	Line       string
	LineBefore string
	LineAfter  string

	Cursor Cursor
}

// NewContext builds a context for the cursor at byte column col of line.
// Columns past the end of the line clamp to it.
func NewContext(bufID, row int, line string, col int, manual bool) Context {
	col = max(0, min(col, len(line)))
	before := line[:col]

	return Context{
		Manual:     manual,
		ChangeID:   uuid.New(),
		BufID:      bufID,
		Row:        row,
		Col:        col,
		Line:       line,
		LineBefore: before,
		LineAfter:  line[col:],
		Cursor: Cursor{
			Row:   row,
			Byte:  col,
			UTF16: lsp.UTF16.Len(before),
			UTF32: lsp.UTF32.Len(before),
		},
	}
}

// EditKind tells how an Edit is applied.
type EditKind uint8

const (
	// EditPlain inserts NewText over the word before the cursor.
	EditPlain EditKind = iota
	// EditRange replaces the range [Begin, End).
	EditRange
	// EditSnippet is a plain edit whose text is an LSP snippet.
	EditSnippet
	// EditSnippetRange is a range edit whose text is an LSP snippet.
	EditSnippetRange
)

// Pos is a row and a column in the edit's encoding.
type Pos struct {
	Row int `msgpack:"row" json:"row"`
	Col int `msgpack:"col" json:"col"`
}

// Edit is a text replacement. Range fields are meaningful only for the
// ranged kinds; End is exclusive, as in LSP.
type Edit struct {
	Kind    EditKind `msgpack:"kind" json:"kind"`
	NewText string   `msgpack:"new_text" json:"new_text"`

	Begin     Pos          `msgpack:"begin,omitempty" json:"begin,omitempty"`
	End       Pos          `msgpack:"end,omitempty" json:"end,omitempty"`
	CursorPos int          `msgpack:"cursor_pos,omitempty" json:"cursor_pos,omitempty"`
	Encoding  lsp.Encoding `msgpack:"encoding,omitempty" json:"encoding,omitempty"`

	// Fallback is the plain insert text to use when the range cannot be
	// applied.
	Fallback *string `msgpack:"fallback,omitempty" json:"fallback,omitempty"`
}

// Ranged reports whether the edit carries a range.
func (e Edit) Ranged() bool {
	return e.Kind == EditRange || e.Kind == EditSnippetRange
}

// Snippet reports whether NewText is a snippet.
func (e Edit) Snippet() bool {
	return e.Kind == EditSnippet || e.Kind == EditSnippetRange
}

// Doc is documentation shown next to an item.
type Doc struct {
	Text   string `msgpack:"text" json:"text"`
	Syntax string `msgpack:"syntax" json:"syntax"`
}

// Extern is the provider-side origin of an item, kept so the host can
// resolve or execute it later.
type Extern struct {
	Inline  bool            `msgpack:"inline" json:"inline"`
	Client  string          `msgpack:"client" json:"client"`
	Item    json.RawMessage `msgpack:"item" json:"item"`
	Command json.RawMessage `msgpack:"command,omitempty" json:"command,omitempty"`

	// Lua marks items produced by a third-party script.
	Lua bool `msgpack:"lua" json:"lua"`
}

// Item is a completion candidate.
type Item struct {
	UID uuid.UUID `msgpack:"uid" json:"uid"`

	// Source is the short name shown for the item's origin.
	Source       string  `msgpack:"source" json:"source"`
	Provider     string  `msgpack:"provider" json:"provider"`
	AlwaysOnTop  bool    `msgpack:"always_on_top" json:"always_on_top"`
	WeightAdjust float64 `msgpack:"weight_adjust" json:"weight_adjust"`

	Label  string `msgpack:"label" json:"label"`
	SortBy string `msgpack:"sort_by" json:"sort_by"`

	PrimaryEdit    Edit   `msgpack:"primary_edit" json:"primary_edit"`
	SecondaryEdits []Edit `msgpack:"secondary_edits,omitempty" json:"secondary_edits,omitempty"`
	AdjustIndent   bool   `msgpack:"adjust_indent" json:"adjust_indent"`

	Kind      string  `msgpack:"kind" json:"kind"`
	Doc       *Doc    `msgpack:"doc,omitempty" json:"doc,omitempty"`
	Preselect bool    `msgpack:"preselect" json:"preselect"`
	Extern    *Extern `msgpack:"extern,omitempty" json:"extern,omitempty"`
}

// Batch is one provider's parsed reply. LocalCache reports whether the
// provider considers the list complete, so it may be filtered locally as
// the user keeps typing instead of being requested again.
type Batch struct {
	Provider   string
	LocalCache bool
	Items      []Item
}

// LookupOptions tunes a cache lookup.
type LookupOptions struct {
	// Always returns stored items even for manual requests, unfiltered.
	Always bool

	// Shift keeps range edits that end past the cursor or span rows,
	// re-anchoring them instead of dropping them.
	Shift bool
}

// CacheLookup is the answer of a cache lookup.
type CacheLookup struct {
	// Usable is false when the cache was reset for this context.
	Usable bool

	// Providers whose items the cache already holds; live requests may
	// exclude them.
	Providers map[string]struct{}

	Items []Item
}

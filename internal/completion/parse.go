package completion

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/stormcomplete/internal/logging"
	"github.com/dshills/stormcomplete/internal/lsp"
)

// ParseOptions describes how replies from one client are turned into items.
type ParseOptions struct {
	ShortName    string
	WeightAdjust float64

	// AlwaysOnTop pins items: nil pins nothing, an empty non-nil slice pins
	// every provider, otherwise only the listed providers.
	AlwaysOnTop []string

	Cursor Cursor

	// Lua marks items as coming from a third-party script.
	Lua bool

	Logger *logging.Logger
}

func (o ParseOptions) onTop(provider string) bool {
	if o.AlwaysOnTop == nil {
		return false
	}
	return len(o.AlwaysOnTop) == 0 || slices.Contains(o.AlwaysOnTop, provider)
}

func (o ParseOptions) logger() *logging.Logger {
	if o.Logger == nil {
		return logging.Null()
	}
	return o.Logger
}

// falsy matches the empty replies providers send: absent, null, false, 0
// and "".
func falsy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.Number:
		return r.Num == 0
	case gjson.String:
		return r.Str == ""
	}
	return false
}

// Parse turns a completion reply into a batch. A list reply may be cached
// locally unless it is marked incomplete; a bare array always may.
// Malformed items are logged and skipped.
func Parse(reply lsp.Reply, opts ParseOptions) Batch {
	b := Batch{Provider: reply.Provider}
	root := gjson.ParseBytes(reply.Message)

	switch {
	case len(reply.Message) == 0 || falsy(root):
		b.LocalCache = true

	case root.IsObject():
		b.LocalCache = falsy(root.Get("isIncomplete"))
		items := root.Get("items")
		if !items.IsArray() {
			opts.logger().Warn("unknown completion reply from %q: items is %s", reply.Provider, items.Type)
			return b
		}

		var defaults lsp.ItemDefaults
		if d := root.Get("itemDefaults"); d.IsObject() {
			if err := json.Unmarshal([]byte(d.Raw), &defaults); err != nil {
				opts.logger().Debug("ignoring item defaults from %q: %v", reply.Provider, err)
				defaults = lsp.ItemDefaults{}
			}
		}
		for _, raw := range items.Array() {
			if item, ok := parseItem(reply, opts, withDefaults(defaults, []byte(raw.Raw))); ok {
				b.Items = append(b.Items, item)
			}
		}

	case root.IsArray():
		b.LocalCache = true
		for _, raw := range root.Array() {
			if item, ok := parseItem(reply, opts, []byte(raw.Raw)); ok {
				b.Items = append(b.Items, item)
			}
		}

	default:
		opts.logger().Warn("unknown completion reply from %q: %s", reply.Provider, root.Type)
	}
	return b
}

// withDefaults fills the fields an item leaves unset from the list's
// itemDefaults.
func withDefaults(d lsp.ItemDefaults, raw []byte) []byte {
	if !gjson.ParseBytes(raw).IsObject() {
		return raw
	}
	set := func(path string, v any) {
		if v == nil || gjson.GetBytes(raw, path).Exists() {
			return
		}
		if out, err := sjson.SetBytes(raw, path, v); err == nil {
			raw = out
		}
	}

	if d.InsertTextFormat != nil {
		set("insertTextFormat", *d.InsertTextFormat)
	}
	if d.InsertTextMode != nil {
		set("insertTextMode", *d.InsertTextMode)
	}
	if len(d.Data) > 0 && !gjson.GetBytes(raw, "data").Exists() {
		if out, err := sjson.SetRawBytes(raw, "data", d.Data); err == nil {
			raw = out
		}
	}

	text := gjson.GetBytes(raw, "insertText")
	if !text.Exists() || text.Str == "" {
		text = gjson.GetBytes(raw, "label")
	}
	if d.EditRange != nil && text.Type == gjson.String && text.Str != "" {
		if d.EditRange.Insert != nil {
			set("textEdit", map[string]any{"newText": text.Str, "insert": *d.EditRange.Insert, "replace": d.EditRange.Range})
		} else {
			set("textEdit", map[string]any{"newText": text.Str, "range": d.EditRange.Range})
		}
	}
	return raw
}

func rangeEdit(enc lsp.Encoding, cursor int, e lsp.AnyTextEdit, fallback string) Edit {
	edit := Edit{
		Kind:      EditRange,
		NewText:   e.NewText,
		Begin:     Pos{Row: e.Range.Start.Line, Col: e.Range.Start.Character},
		End:       Pos{Row: e.Range.End.Line, Col: e.Range.End.Character},
		CursorPos: cursor,
		Encoding:  enc,
	}
	if fallback != "" {
		edit.Fallback = &fallback
	}
	return edit
}

func primaryEdit(enc lsp.Encoding, cursor Cursor, item *lsp.CompletionItem) Edit {
	text := item.InsertText
	if text == "" {
		text = item.Label
	}
	snippet := item.InsertTextFormat != nil && *item.InsertTextFormat == lsp.InsertTextFormatSnippet

	switch {
	case item.TextEdit != nil:
		e := rangeEdit(enc, cursor.Col(enc), *item.TextEdit, item.InsertText)
		if snippet {
			e.Kind = EditSnippetRange
		}
		return e
	case snippet:
		return Edit{Kind: EditSnippet, NewText: text}
	default:
		return Edit{Kind: EditPlain, NewText: text}
	}
}

func adjustIndent(mode *lsp.InsertTextMode, e Edit) bool {
	if e.Ranged() {
		return false
	}
	return (mode != nil && *mode == lsp.InsertTextModeAdjustIndentation) || e.Kind == EditSnippet
}

func itemDoc(item *lsp.CompletionItem) *Doc {
	if text, syntax := lsp.ExtractDocumentation(item.Documentation); text != "" || syntax != "" {
		return &Doc{Text: text, Syntax: syntax}
	}
	if item.Detail != "" {
		return &Doc{Text: item.Detail}
	}
	return nil
}

func parseItem(reply lsp.Reply, opts ParseOptions, raw []byte) (Item, bool) {
	if falsy(gjson.ParseBytes(raw)) {
		return Item{}, false
	}

	var parsed lsp.CompletionItem
	if err := json.Unmarshal(raw, &parsed); err != nil {
		opts.logger().Warn("%q -> %v", reply.Provider, err)
		return Item{}, false
	}

	label := parsed.Label
	if parsed.LabelDetails != nil {
		label += parsed.LabelDetails.Detail
	}

	primary := primaryEdit(reply.Encoding, opts.Cursor, &parsed)

	var secondary []Edit
	for _, e := range parsed.AdditionalTextEdits {
		secondary = append(secondary, rangeEdit(reply.Encoding, -1, e, ""))
	}

	sortBy := parsed.FilterText
	if sortBy == "" {
		if primary.Kind == EditSnippet {
			sortBy = parsed.Label
		} else {
			sortBy = primary.NewText
		}
	}

	return Item{
		UID:            uuid.New(),
		Source:         opts.ShortName,
		Provider:       reply.Provider,
		AlwaysOnTop:    opts.onTop(reply.Provider),
		WeightAdjust:   opts.WeightAdjust,
		Label:          label,
		SortBy:         sortBy,
		PrimaryEdit:    primary,
		SecondaryEdits: secondary,
		AdjustIndent:   adjustIndent(parsed.InsertTextMode, primary),
		Kind:           parsed.Kind.String(),
		Doc:            itemDoc(&parsed),
		Preselect:      parsed.Preselect,
		Extern: &Extern{
			Client:  reply.Provider,
			Item:    json.RawMessage(raw),
			Command: parsed.Command,
			Lua:     opts.Lua,
		},
	}, true
}

// ParseInline turns an inline completion reply into a batch. Inline
// replies are never cached locally.
func ParseInline(reply lsp.Reply, opts ParseOptions) Batch {
	b := Batch{Provider: reply.Provider}
	root := gjson.ParseBytes(reply.Message)

	var items []gjson.Result
	switch {
	case len(reply.Message) == 0 || falsy(root):
		return b
	case root.IsObject():
		list := root.Get("items")
		if !list.IsArray() {
			opts.logger().Warn("unknown inline reply from %q: items is %s", reply.Provider, list.Type)
			return b
		}
		items = list.Array()
	case root.IsArray():
		items = root.Array()
	default:
		opts.logger().Warn("unknown inline reply from %q: %s", reply.Provider, root.Type)
		return b
	}

	for _, raw := range items {
		if item, ok := parseInlineItem(reply, opts, []byte(raw.Raw)); ok {
			b.Items = append(b.Items, item)
		}
	}
	return b
}

func parseInlineItem(reply lsp.Reply, opts ParseOptions, raw []byte) (Item, bool) {
	if falsy(gjson.ParseBytes(raw)) {
		return Item{}, false
	}

	var parsed lsp.InlineCompletionItem
	if err := json.Unmarshal(raw, &parsed); err != nil || !gjson.GetBytes(raw, "insertText").Exists() {
		// Regular completion items carry a kind; they are not worth a warning.
		if !gjson.GetBytes(raw, "kind").Exists() {
			opts.logger().Warn("%q -> inline item %s", reply.Provider, raw)
		}
		return Item{}, false
	}

	text := parsed.InsertText.Text
	var primary Edit
	switch {
	case parsed.Range != nil:
		primary = rangeEdit(reply.Encoding, opts.Cursor.Col(reply.Encoding), lsp.AnyTextEdit{NewText: text, Range: *parsed.Range}, "")
		if parsed.InsertText.Snippet {
			primary.Kind = EditSnippetRange
		}
	case parsed.InsertText.Snippet:
		primary = Edit{Kind: EditSnippet, NewText: text}
	default:
		primary = Edit{Kind: EditPlain, NewText: text}
	}

	line, _, _ := strings.Cut(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	sortBy := parsed.FilterText
	if sortBy == "" {
		sortBy = line
	}
	kind := "Text"
	if primary.Kind == EditSnippet {
		kind = "Snippet"
	}

	return Item{
		UID:          uuid.New(),
		Source:       opts.ShortName,
		Provider:     reply.Provider,
		AlwaysOnTop:  opts.onTop(reply.Provider),
		WeightAdjust: opts.WeightAdjust,
		Label:        strings.TrimSpace(line),
		SortBy:       sortBy,
		PrimaryEdit:  primary,
		AdjustIndent: adjustIndent(nil, primary),
		Kind:         kind,
		Doc:          &Doc{Text: text},
		Extern: &Extern{
			Inline:  true,
			Client:  reply.Provider,
			Item:    json.RawMessage(raw),
			Command: parsed.Command,
			Lua:     opts.Lua,
		},
	}, true
}

package lsp

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Position in a text document expressed as zero-based line and character
// offset. The character unit depends on the provider's Encoding.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document expressed as start and end positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextEdit represents a textual edit applicable to a text document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// AnyTextEdit accepts the edit shapes providers send for a completion item:
// a TextEdit, an InsertReplaceEdit, or the non-standard flat form
// {start, end, new_text}. For an InsertReplaceEdit, Range holds the replace
// range and Insert the insert range.
type AnyTextEdit struct {
	NewText string
	Range   Range
	Insert  *Range
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *AnyTextEdit) UnmarshalJSON(data []byte) error {
	var raw struct {
		NewText  *string   `json:"newText"`
		NewText2 *string   `json:"new_text"`
		Range    *Range    `json:"range"`
		Insert   *Range    `json:"insert"`
		Replace  *Range    `json:"replace"`
		Start    *Position `json:"start"`
		End      *Position `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.NewText != nil && raw.Range != nil:
		*e = AnyTextEdit{NewText: *raw.NewText, Range: *raw.Range}
	case raw.NewText != nil && raw.Insert != nil && raw.Replace != nil:
		*e = AnyTextEdit{NewText: *raw.NewText, Range: *raw.Replace, Insert: raw.Insert}
	case raw.NewText2 != nil && raw.Start != nil && raw.End != nil:
		*e = AnyTextEdit{NewText: *raw.NewText2, Range: Range{Start: *raw.Start, End: *raw.End}}
	default:
		return fmt.Errorf("unrecognised text edit: %s", data)
	}
	return nil
}

// EditRange is the default edit range of a completion list: either a plain
// Range or an insert/replace pair.
type EditRange struct {
	Range  Range
	Insert *Range
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *EditRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start   *Position `json:"start"`
		End     *Position `json:"end"`
		Insert  *Range    `json:"insert"`
		Replace *Range    `json:"replace"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Start != nil && raw.End != nil:
		*r = EditRange{Range: Range{Start: *raw.Start, End: *raw.End}}
	case raw.Insert != nil && raw.Replace != nil:
		*r = EditRange{Range: *raw.Replace, Insert: raw.Insert}
	default:
		return fmt.Errorf("unrecognised edit range: %s", data)
	}
	return nil
}

// MarkupContent represents human readable text.
type MarkupContent struct {
	Kind  MarkupKind `json:"kind"`
	Value string     `json:"value"`
}

// MarkupKind describes the content type.
type MarkupKind string

const (
	MarkupKindPlainText MarkupKind = "plaintext"
	MarkupKindMarkdown  MarkupKind = "markdown"
)

// Command represents a reference to a command.
type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// --- Completion ---

// ItemDefaults are values applied to items that do not set them.
type ItemDefaults struct {
	CommitCharacters []string          `json:"commitCharacters,omitempty"`
	EditRange        *EditRange        `json:"editRange,omitempty"`
	InsertTextFormat *InsertTextFormat `json:"insertTextFormat,omitempty"`
	InsertTextMode   *InsertTextMode   `json:"insertTextMode,omitempty"`
	Data             json.RawMessage   `json:"data,omitempty"`
}

// CompletionItemLabelDetails carries extra label text.
type CompletionItemLabelDetails struct {
	Detail      string `json:"detail,omitempty"`
	Description string `json:"description,omitempty"`
}

// CompletionItem represents a completion suggestion.
type CompletionItem struct {
	Label               string                      `json:"label"`
	LabelDetails        *CompletionItemLabelDetails `json:"labelDetails,omitempty"`
	Kind                CompletionItemKind          `json:"kind,omitempty"`
	Tags                []CompletionItemTag         `json:"tags,omitempty"`
	Detail              string                      `json:"detail,omitempty"`
	Documentation       json.RawMessage             `json:"documentation,omitempty"`
	Deprecated          bool                        `json:"deprecated,omitempty"`
	Preselect           bool                        `json:"preselect,omitempty"`
	SortText            string                      `json:"sortText,omitempty"`
	FilterText          string                      `json:"filterText,omitempty"`
	InsertText          string                      `json:"insertText,omitempty"`
	InsertTextFormat    *InsertTextFormat           `json:"insertTextFormat,omitempty"`
	InsertTextMode      *InsertTextMode             `json:"insertTextMode,omitempty"`
	TextEdit            *AnyTextEdit                `json:"textEdit,omitempty"`
	AdditionalTextEdits []AnyTextEdit               `json:"additionalTextEdits,omitempty"`
	CommitCharacters    []string                    `json:"commitCharacters,omitempty"`
	Command             json.RawMessage             `json:"command,omitempty"`
	Data                json.RawMessage             `json:"data,omitempty"`
}

// CompletionItemKind represents the type of completion item.
type CompletionItemKind int

const (
	CompletionItemKindText          CompletionItemKind = 1
	CompletionItemKindMethod        CompletionItemKind = 2
	CompletionItemKindFunction      CompletionItemKind = 3
	CompletionItemKindConstructor   CompletionItemKind = 4
	CompletionItemKindField         CompletionItemKind = 5
	CompletionItemKindVariable      CompletionItemKind = 6
	CompletionItemKindClass         CompletionItemKind = 7
	CompletionItemKindInterface     CompletionItemKind = 8
	CompletionItemKindModule        CompletionItemKind = 9
	CompletionItemKindProperty      CompletionItemKind = 10
	CompletionItemKindUnit          CompletionItemKind = 11
	CompletionItemKindValue         CompletionItemKind = 12
	CompletionItemKindEnum          CompletionItemKind = 13
	CompletionItemKindKeyword       CompletionItemKind = 14
	CompletionItemKindSnippet       CompletionItemKind = 15
	CompletionItemKindColor         CompletionItemKind = 16
	CompletionItemKindFile          CompletionItemKind = 17
	CompletionItemKindReference     CompletionItemKind = 18
	CompletionItemKindFolder        CompletionItemKind = 19
	CompletionItemKindEnumMember    CompletionItemKind = 20
	CompletionItemKindConstant      CompletionItemKind = 21
	CompletionItemKindStruct        CompletionItemKind = 22
	CompletionItemKindEvent         CompletionItemKind = 23
	CompletionItemKindOperator      CompletionItemKind = 24
	CompletionItemKindTypeParameter CompletionItemKind = 25
)

// String returns a human-readable name for the kind, or "" when unknown.
func (k CompletionItemKind) String() string {
	switch k {
	case CompletionItemKindText:
		return "Text"
	case CompletionItemKindMethod:
		return "Method"
	case CompletionItemKindFunction:
		return "Function"
	case CompletionItemKindConstructor:
		return "Constructor"
	case CompletionItemKindField:
		return "Field"
	case CompletionItemKindVariable:
		return "Variable"
	case CompletionItemKindClass:
		return "Class"
	case CompletionItemKindInterface:
		return "Interface"
	case CompletionItemKindModule:
		return "Module"
	case CompletionItemKindProperty:
		return "Property"
	case CompletionItemKindUnit:
		return "Unit"
	case CompletionItemKindValue:
		return "Value"
	case CompletionItemKindEnum:
		return "Enum"
	case CompletionItemKindKeyword:
		return "Keyword"
	case CompletionItemKindSnippet:
		return "Snippet"
	case CompletionItemKindColor:
		return "Color"
	case CompletionItemKindFile:
		return "File"
	case CompletionItemKindReference:
		return "Reference"
	case CompletionItemKindFolder:
		return "Folder"
	case CompletionItemKindEnumMember:
		return "EnumMember"
	case CompletionItemKindConstant:
		return "Constant"
	case CompletionItemKindStruct:
		return "Struct"
	case CompletionItemKindEvent:
		return "Event"
	case CompletionItemKindOperator:
		return "Operator"
	case CompletionItemKindTypeParameter:
		return "TypeParameter"
	default:
		return ""
	}
}

// CompletionItemTag represents a tag for completion items.
type CompletionItemTag int

const (
	CompletionItemTagDeprecated CompletionItemTag = 1
)

// InsertTextFormat defines the format of insert text.
type InsertTextFormat int

const (
	InsertTextFormatPlainText InsertTextFormat = 1
	InsertTextFormatSnippet   InsertTextFormat = 2
)

// InsertTextMode defines how whitespace of inserted text is handled.
type InsertTextMode int

const (
	InsertTextModeAsIs              InsertTextMode = 1
	InsertTextModeAdjustIndentation InsertTextMode = 2
)

// --- Inline completion ---

// StringValue is a snippet or plain string with an explicit kind.
type StringValue struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// InlineInsertText is either a plain string or a StringValue.
type InlineInsertText struct {
	Text    string
	Snippet bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *InlineInsertText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = InlineInsertText{Text: s}
		return nil
	}
	var sv StringValue
	if err := json.Unmarshal(data, &sv); err != nil {
		return err
	}
	*t = InlineInsertText{Text: sv.Value, Snippet: strings.EqualFold(sv.Kind, "snippet")}
	return nil
}

// InlineCompletionItem is one inline completion suggestion.
type InlineCompletionItem struct {
	InsertText InlineInsertText `json:"insertText"`
	FilterText string           `json:"filterText,omitempty"`
	Range      *Range           `json:"range,omitempty"`
	Command    json.RawMessage  `json:"command,omitempty"`
}

// ExtractDocumentation extracts the documentation text and its syntax from
// a string or MarkupContent value.
func ExtractDocumentation(doc json.RawMessage) (text string, syntax string) {
	if len(doc) == 0 {
		return "", ""
	}

	var s string
	if err := json.Unmarshal(doc, &s); err == nil {
		return s, ""
	}
	var mc MarkupContent
	if err := json.Unmarshal(doc, &mc); err == nil {
		return mc.Value, string(mc.Kind)
	}
	return "", ""
}

// DetectLanguageID returns the LSP language identifier for a file path.
func DetectLanguageID(path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js":
		return "javascript"
	case ".jsx":
		return "javascriptreact"
	case ".py":
		return "python"
	case ".rb":
		return "ruby"
	case ".java":
		return "java"
	case ".c":
		return "c"
	case ".cpp", ".cc", ".cxx":
		return "cpp"
	case ".h", ".hpp":
		return "cpp"
	case ".cs":
		return "csharp"
	case ".swift":
		return "swift"
	case ".kt", ".kts":
		return "kotlin"
	case ".scala":
		return "scala"
	case ".php":
		return "php"
	case ".lua":
		return "lua"
	case ".sh", ".bash":
		return "shellscript"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".xml":
		return "xml"
	case ".html", ".htm":
		return "html"
	case ".css":
		return "css"
	case ".scss":
		return "scss"
	case ".less":
		return "less"
	case ".md", ".markdown":
		return "markdown"
	case ".sql":
		return "sql"
	case ".dockerfile":
		return "dockerfile"
	case ".proto":
		return "protobuf"
	case ".zig":
		return "zig"
	case ".nim":
		return "nim"
	case ".ex", ".exs":
		return "elixir"
	case ".erl", ".hrl":
		return "erlang"
	case ".hs":
		return "haskell"
	case ".ml", ".mli":
		return "ocaml"
	case ".fs", ".fsi", ".fsx":
		return "fsharp"
	case ".clj", ".cljs", ".cljc":
		return "clojure"
	case ".v":
		return "v"
	case ".d":
		return "d"
	default:
		// Check filename for special cases
		base := strings.ToLower(filepath.Base(path))
		switch base {
		case "dockerfile":
			return "dockerfile"
		case "makefile", "gnumakefile":
			return "makefile"
		case "cmakelists.txt":
			return "cmake"
		}
		return "plaintext"
	}
}

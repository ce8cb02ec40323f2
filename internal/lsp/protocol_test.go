package lsp

import (
	"encoding/json"
	"testing"
)

func TestAnyTextEdit_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantText   string
		wantStart  int
		wantEnd    int
		wantInsert bool
		wantErr    bool
	}{
		{
			name:      "text edit",
			data:      `{"range":{"start":{"line":0,"character":1},"end":{"line":0,"character":4}},"newText":"foo"}`,
			wantText:  "foo",
			wantStart: 1,
			wantEnd:   4,
		},
		{
			name:       "insert replace edit uses replace range",
			data:       `{"newText":"bar","insert":{"start":{"line":0,"character":1},"end":{"line":0,"character":2}},"replace":{"start":{"line":0,"character":1},"end":{"line":0,"character":6}}}`,
			wantText:   "bar",
			wantStart:  1,
			wantEnd:    6,
			wantInsert: true,
		},
		{
			name:      "flat edit",
			data:      `{"start":{"line":2,"character":3},"end":{"line":2,"character":5},"new_text":"baz"}`,
			wantText:  "baz",
			wantStart: 3,
			wantEnd:   5,
		},
		{
			name:    "unrecognised",
			data:    `{"text":"x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e AnyTextEdit
			err := json.Unmarshal([]byte(tt.data), &e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if e.NewText != tt.wantText {
				t.Errorf("NewText = %q, want %q", e.NewText, tt.wantText)
			}
			if e.Range.Start.Character != tt.wantStart || e.Range.End.Character != tt.wantEnd {
				t.Errorf("Range = %+v", e.Range)
			}
			if (e.Insert != nil) != tt.wantInsert {
				t.Errorf("Insert = %+v, want present=%v", e.Insert, tt.wantInsert)
			}
		})
	}
}

func TestEditRange_Unmarshal(t *testing.T) {
	var plain EditRange
	if err := json.Unmarshal([]byte(`{"start":{"line":1,"character":0},"end":{"line":1,"character":3}}`), &plain); err != nil {
		t.Fatalf("Unmarshal(range) error = %v", err)
	}
	if plain.Insert != nil || plain.Range.End.Character != 3 {
		t.Errorf("plain = %+v", plain)
	}

	var pair EditRange
	data := `{"insert":{"start":{"line":1,"character":0},"end":{"line":1,"character":2}},"replace":{"start":{"line":1,"character":0},"end":{"line":1,"character":5}}}`
	if err := json.Unmarshal([]byte(data), &pair); err != nil {
		t.Fatalf("Unmarshal(pair) error = %v", err)
	}
	if pair.Insert == nil || pair.Range.End.Character != 5 {
		t.Errorf("pair = %+v", pair)
	}
}

func TestInlineInsertText_Unmarshal(t *testing.T) {
	var plain InlineInsertText
	if err := json.Unmarshal([]byte(`"hello"`), &plain); err != nil {
		t.Fatal(err)
	}
	if plain.Text != "hello" || plain.Snippet {
		t.Errorf("plain = %+v", plain)
	}

	var snip InlineInsertText
	if err := json.Unmarshal([]byte(`{"kind":"snippet","value":"f($1)"}`), &snip); err != nil {
		t.Fatal(err)
	}
	if snip.Text != "f($1)" || !snip.Snippet {
		t.Errorf("snippet = %+v", snip)
	}
}

func TestExtractDocumentation(t *testing.T) {
	tests := []struct {
		data       string
		wantText   string
		wantSyntax string
	}{
		{``, "", ""},
		{`"plain doc"`, "plain doc", ""},
		{`{"kind":"markdown","value":"**bold**"}`, "**bold**", "markdown"},
		{`42`, "", ""},
	}
	for _, tt := range tests {
		text, syntax := ExtractDocumentation(json.RawMessage(tt.data))
		if text != tt.wantText || syntax != tt.wantSyntax {
			t.Errorf("ExtractDocumentation(%s) = %q, %q; want %q, %q", tt.data, text, syntax, tt.wantText, tt.wantSyntax)
		}
	}
}

func TestCompletionItemKind_String(t *testing.T) {
	if got := CompletionItemKindFunction.String(); got != "Function" {
		t.Errorf("String() = %q, want Function", got)
	}
	if got := CompletionItemKind(99).String(); got != "" {
		t.Errorf("unknown kind String() = %q, want empty", got)
	}
}

func TestDetectLanguageID(t *testing.T) {
	tests := map[string]string{
		"main.go":     "go",
		"lib.rs":      "rust",
		"app.py":      "python",
		"index.ts":    "typescript",
		"README.md":   "markdown",
		"unknown.zzz": "plaintext",
	}
	for path, want := range tests {
		if got := DetectLanguageID(path); got != want {
			t.Errorf("DetectLanguageID(%q) = %q, want %q", path, got, want)
		}
	}
}

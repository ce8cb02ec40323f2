package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestPaginator_Pages(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		width     int
		wantPages int
	}{
		{"exact multiple ends with empty page", 6, 3, 3},
		{"short last page", 7, 3, 3},
		{"single short page", 2, 5, 1},
		{"empty", 0, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			bridge := newFakeBridge()
			bridge.items["p"] = numbered(tt.total)

			g := reg.Begin("c")
			pager := NewPaginator(reg, bridge)

			var got []json.RawMessage
			pages := 0
			for page, err := range pager.Pages(context.Background(), PageRequest{Channel: "c", Provider: "p", Generation: g, Width: tt.width}) {
				if err != nil {
					t.Fatalf("Pages() error = %v", err)
				}
				pages++
				got = append(got, page...)
			}

			if pages != tt.wantPages {
				t.Errorf("pages = %d, want %d", pages, tt.wantPages)
			}
			if len(got) != tt.total {
				t.Fatalf("concatenated %d items, want %d", len(got), tt.total)
			}
			for i, raw := range got {
				if string(raw) != string(bridge.items["p"][i]) {
					t.Errorf("item %d = %s, want %s", i, raw, bridge.items["p"][i])
				}
			}
		})
	}
}

func TestPaginator_Ranges(t *testing.T) {
	reg := NewRegistry()
	bridge := newFakeBridge()
	bridge.items["p"] = numbered(5)
	g := reg.Begin("c")

	for range NewPaginator(reg, bridge).Pages(context.Background(), PageRequest{Channel: "c", Provider: "p", Generation: g, Width: 2}) {
	}

	want := [][2]int{{1, 2}, {3, 4}, {5, 6}}
	if len(bridge.pulls) != len(want) {
		t.Fatalf("pulls = %d, want %d", len(bridge.pulls), len(want))
	}
	for i, p := range bridge.pulls {
		if p.Lo != want[i][0] || p.Hi != want[i][1] {
			t.Errorf("pull %d = [%d,%d], want %v", i, p.Lo, p.Hi, want[i])
		}
	}
}

func TestPaginator_StopsOnSupersession(t *testing.T) {
	reg := NewRegistry()
	bridge := newFakeBridge()
	bridge.items["p"] = numbered(100)
	g := reg.Begin("c")

	pages := 0
	for _, err := range NewPaginator(reg, bridge).Pages(context.Background(), PageRequest{Channel: "c", Provider: "p", Generation: g, Width: 10}) {
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		pages++
		if pages == 2 {
			reg.Begin("c")
		}
	}

	if pages != 2 {
		t.Errorf("pages = %d, want 2", pages)
	}
	if n := bridge.pullCount(); n != 2 {
		t.Errorf("pulls = %d, want 2", n)
	}
}

func TestPaginator_PullError(t *testing.T) {
	reg := NewRegistry()
	bridge := newFakeBridge()
	bridge.pullErr = errors.New("boom")
	g := reg.Begin("c")

	var errs []error
	for _, err := range NewPaginator(reg, bridge).Pages(context.Background(), PageRequest{Channel: "c", Provider: "p", Generation: g, Width: 10}) {
		errs = append(errs, err)
	}

	if len(errs) != 1 {
		t.Fatalf("got %d yields, want 1", len(errs))
	}
	var perr *ProviderError
	if !errors.As(errs[0], &perr) || perr.Op != "pull" {
		t.Errorf("error = %v, want pull ProviderError", errs[0])
	}
}

func TestReassemble(t *testing.T) {
	page := []json.RawMessage{json.RawMessage(`{"label":"a"}`), json.RawMessage(`{"label":"b"}`)}

	tests := []struct {
		name     string
		original string
		want     string
	}{
		{"list replaces items", `{"isIncomplete":false,"items":[{"label":"x"}]}`, `{"isIncomplete":false,"items":[{"label":"a"},{"label":"b"}]}`},
		{"array replaced", `[{"label":"x"}]`, `[{"label":"a"},{"label":"b"}]`},
		{"null replaced", `null`, `[{"label":"a"},{"label":"b"}]`},
		{"object without items replaced", `{"foo":1}`, `[{"label":"a"},{"label":"b"}]`},
		{"empty original", ``, `[{"label":"a"},{"label":"b"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reassemble(json.RawMessage(tt.original), page)
			if string(got) != tt.want {
				t.Errorf("Reassemble() = %s, want %s", got, tt.want)
			}
		})
	}
}

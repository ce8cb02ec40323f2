package lsp

import (
	"encoding/json"
	"testing"
	"time"
)

func replyFrom(provider, msg string) Reply {
	return Reply{Provider: provider, Message: json.RawMessage(msg)}
}

func TestRegistry_BeginStartsAtOne(t *testing.T) {
	reg := NewRegistry()

	if got := reg.Current("a"); got != 0 {
		t.Errorf("Current() before Begin = %d, want 0", got)
	}
	if got := reg.Begin("a"); got != 1 {
		t.Errorf("first Begin() = %d, want 1", got)
	}
	if got := reg.Begin("a"); got != 2 {
		t.Errorf("second Begin() = %d, want 2", got)
	}
	if got := reg.Begin("b"); got != 1 {
		t.Errorf("Begin() on another channel = %d, want 1", got)
	}
}

func TestRegistry_Supersession(t *testing.T) {
	reg := NewRegistry()

	g1 := reg.Begin("c")
	reg.Ingest("c", g1, replyFrom("p1", `"one"`), 0, false)

	entries, status := reg.Drain("c", g1)
	if status != DrainLive || len(entries) != 1 {
		t.Fatalf("Drain(g1) = %d entries, %v; want 1, live", len(entries), status)
	}

	g2 := reg.Begin("c")
	if g2 != 2 {
		t.Fatalf("Begin() = %d, want 2", g2)
	}

	// A late reply for the old generation must not reach the new session.
	if reg.Ingest("c", g1, replyFrom("p1", `"late"`), 0, false) {
		t.Error("Ingest() of a stale reply should be dropped")
	}

	if _, status := reg.Drain("c", g1); status != DrainSuperseded {
		t.Errorf("Drain(g1) status = %v, want superseded", status)
	}

	reg.Ingest("c", g2, replyFrom("p2", `"two"`), 0, true)
	entries, status = reg.Drain("c", g2)
	if status != DrainDone {
		t.Errorf("Drain(g2) status = %v, want done", status)
	}
	if len(entries) != 1 || entries[0].Reply.Provider != "p2" {
		t.Errorf("Drain(g2) entries = %+v, want the p2 reply only", entries)
	}
}

func TestRegistry_StalenessIsAbsorbing(t *testing.T) {
	reg := NewRegistry()

	g1 := reg.Begin("c")
	reg.Begin("c")

	for i := 0; i < 3; i++ {
		reg.Ingest("c", g1, replyFrom("p", `1`), 0, false)
		if _, status := reg.Drain("c", g1); status != DrainSuperseded {
			t.Fatalf("Drain(g1) attempt %d status = %v, want superseded", i, status)
		}
	}
}

func TestRegistry_IngestNewerSynthesizesSession(t *testing.T) {
	reg := NewRegistry()
	reg.Begin("c")

	if !reg.Ingest("c", 5, replyFrom("p", `1`), 3, false) {
		t.Fatal("Ingest() for a newer generation should be kept")
	}
	if got := reg.Current("c"); got != 5 {
		t.Errorf("Current() = %d, want 5", got)
	}
	entries, status := reg.Drain("c", 5)
	if status != DrainLive || len(entries) != 1 || entries[0].Multipart != 3 {
		t.Errorf("Drain(5) = %+v, %v", entries, status)
	}

	// The counter moves past the synthesized generation.
	if got := reg.Begin("c"); got != 6 {
		t.Errorf("Begin() after synthesized session = %d, want 6", got)
	}
}

func TestRegistry_IgnoreAfterDone(t *testing.T) {
	reg := NewRegistry()
	g := reg.Begin("c")

	reg.Ingest("c", g, replyFrom("a", `1`), 0, true)
	if reg.Ingest("c", g, replyFrom("b", `2`), 0, false) {
		t.Error("Ingest() after done should be dropped")
	}

	entries, status := reg.Drain("c", g)
	if status != DrainDone {
		t.Errorf("status = %v, want done", status)
	}
	if len(entries) != 1 || entries[0].Reply.Provider != "a" {
		t.Errorf("entries = %+v, want only provider a", entries)
	}
}

func TestRegistry_DrainDelayed(t *testing.T) {
	reg := NewRegistry()
	reg.Begin("c")

	if _, status := reg.Drain("c", 4); status != DrainDelayed {
		t.Errorf("Drain() with a future generation = %v, want delayed", status)
	}
}

func TestRegistry_DrainPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	g := reg.Begin("c")

	for _, p := range []string{"a", "b", "c", "d"} {
		reg.Ingest("c", g, replyFrom(p, `0`), 0, false)
	}
	entries, _ := reg.Drain("c", g)

	var got string
	for _, e := range entries {
		got += e.Reply.Provider
	}
	if got != "abcd" {
		t.Errorf("drain order = %q, want abcd", got)
	}

	// Drain pops: a second drain sees nothing.
	if again, _ := reg.Drain("c", g); len(again) != 0 {
		t.Errorf("second Drain() = %d entries, want 0", len(again))
	}
}

func TestRegistry_WatchWakesOnMutation(t *testing.T) {
	reg := NewRegistry()
	g := reg.Begin("c")

	wake := reg.Watch("c")
	if entries, _ := reg.Drain("c", g); len(entries) != 0 {
		t.Fatal("expected empty drain")
	}

	// Mutation lands between drain and wait; the captured signal still fires.
	reg.Ingest("c", g, replyFrom("p", `1`), 0, false)

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("Watch() signal not closed by Ingest")
	}

	wake = reg.Watch("c")
	reg.Begin("c")
	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("Watch() signal not closed by Begin")
	}
}

func TestRegistry_Started(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := NewRegistry(WithClock(func() time.Time { return now }))

	g := reg.Begin("c")
	started, ok := reg.Started("c", g)
	if !ok || !started.Equal(now) {
		t.Errorf("Started() = %v, %v; want %v, true", started, ok, now)
	}
	if _, ok := reg.Started("c", g+1); ok {
		t.Error("Started() for a non-current generation should report false")
	}
}

func TestDrainStatus_String(t *testing.T) {
	tests := []struct {
		status DrainStatus
		want   string
	}{
		{DrainLive, "live"},
		{DrainDone, "done"},
		{DrainSuperseded, "superseded"},
		{DrainDelayed, "delayed"},
		{DrainStatus(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("DrainStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/dshills/stormcomplete/internal/logging"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if s.Clients.LSP.AlwaysOnTop != nil {
		t.Error("default pins providers on top")
	}
	if s.LogLevel() != logging.LevelInfo {
		t.Errorf("LogLevel = %v", s.LogLevel())
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	s, err := Parse([]byte(`
[match]
max_results = 10
unifying_chars = ["."]

[clients.lsp]
always_on_top = ["gopls"]
pull_limit = 5

[clients.inline]
live_pulling = false

[scripts]
dir = "/tmp/scripts"
timeout = "500ms"

[cache]
ttl = "1h"

[log]
level = "debug"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if s.Match.MaxResults != 10 || s.Match.LookAhead != 2 {
		t.Errorf("Match = %+v, want max_results overridden and look_ahead kept", s.Match)
	}
	if !slices.Equal(s.Clients.LSP.AlwaysOnTop, []string{"gopls"}) || s.Clients.LSP.PullLimit != 5 {
		t.Errorf("LSP = %+v", s.Clients.LSP)
	}
	if s.Clients.LSP.ShortName != "LSP" || !s.Clients.LSP.Enabled {
		t.Errorf("LSP defaults lost: %+v", s.Clients.LSP)
	}
	if s.Clients.Inline.LivePulling {
		t.Error("inline live_pulling not overridden")
	}
	if s.Scripts.Timeout.Std() != 500*time.Millisecond || s.Cache.TTL.Std() != time.Hour {
		t.Errorf("durations = %v, %v", s.Scripts.Timeout.Std(), s.Cache.TTL.Std())
	}
	if s.LogLevel() != logging.LevelDebug {
		t.Errorf("LogLevel = %v", s.LogLevel())
	}

	m := s.MatchOptions()
	if m.UnifyingChars != "." || m.MaxResults != 10 || m.FuzzyCutoff != 0.6 {
		t.Errorf("MatchOptions = %+v", m)
	}
	o := s.Clients.LSP.Options()
	if o.ShortName != "LSP" || o.PullLimit != 5 || o.WeightAdjust != 0.5 {
		t.Errorf("Options = %+v", o)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantParse bool
		wantLine  bool
	}{
		{"syntax", "[match\nmax_results = 1", true, true},
		{"unknown key", "[match]\nbogus = 1", true, false},
		{"bad duration", "[cache]\nttl = \"soon\"", true, false},
		{"wrong type", "[match]\nmax_results = \"many\"", true, false},
		{"invalid value", "[match]\nfuzzy_cutoff = 2.0", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse succeeded")
			}
			var perr *ParseError
			if errors.As(err, &perr) != tt.wantParse {
				t.Fatalf("error = %v (%T), want ParseError %v", err, err, tt.wantParse)
			}
			if tt.wantParse && tt.wantLine && perr.Line == 0 {
				t.Errorf("ParseError has no position: %v", perr)
			}
			if !tt.wantParse && !errors.Is(err, ErrInvalid) {
				t.Errorf("error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		path   string
	}{
		{"negative max results", func(s *Settings) { s.Match.MaxResults = -1 }, "match.max_results"},
		{"cutoff above one", func(s *Settings) { s.Match.FuzzyCutoff = 1.5 }, "match.fuzzy_cutoff"},
		{"negative chunk", func(s *Settings) { s.Cache.Chunk = -3 }, "cache.chunk"},
		{"negative ttl", func(s *Settings) { s.Cache.TTL = Duration(-time.Second) }, "cache.ttl"},
		{"unknown level", func(s *Settings) { s.Log.Level = "loud" }, "log.level"},
		{"long unifying char", func(s *Settings) { s.Match.UnifyingChars = []string{"ab"} }, "match.unifying_chars"},
		{"negative multipart", func(s *Settings) { s.Bridge.Multipart = -1 }, "bridge.multipart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate = %v, want ValidationError", err)
			}
			if verr.Path != tt.path {
				t.Errorf("Path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if s.Match.MaxResults != Default().Match.MaxResults {
		t.Error("missing file did not yield defaults")
	}

	path := filepath.Join(dir, "storm.toml")
	writeFile(t, path, "[match]\nmax_results = 7\n[cache]\ndir = \"/from/file\"\n")

	t.Setenv("STORM_CACHE_DIR", "/from/env")
	t.Setenv("STORM_INLINE_LIVE_PULLING", "false")
	t.Setenv("STORM_SCRIPTS_TIMEOUT", "3s")

	s, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Match.MaxResults != 7 {
		t.Errorf("max_results = %d, want 7 from file", s.Match.MaxResults)
	}
	if s.Cache.Dir != "/from/env" {
		t.Errorf("cache.dir = %q, want env to win over the file", s.Cache.Dir)
	}
	if s.Clients.Inline.LivePulling || s.Scripts.Timeout.Std() != 3*time.Second {
		t.Errorf("env overrides not applied: %+v %+v", s.Clients.Inline, s.Scripts)
	}
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("STORM_MATCH_MAX_RESULTS", "lots")
	_, err := Load("")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Path != "STORM_MATCH_MAX_RESULTS" {
		t.Errorf("Load = %v, want ValidationError for the variable", err)
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	if !slices.IsSorted(names) || !slices.Contains(names, "STORM_LOG_LEVEL") {
		t.Errorf("EnvNames = %v", names)
	}
	for _, n := range names {
		if len(n) <= len(EnvPrefix) || n[:len(EnvPrefix)] != EnvPrefix {
			t.Errorf("%s lacks the %s prefix", n, EnvPrefix)
		}
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "storm.yaml")
	writeFile(t, path, `
match:
  max_results: 9
  unifying_chars: ["-"]
clients:
  third_party:
    short_name: LUA
    always_on_top: []
scripts:
  timeout: 500ms
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Match.MaxResults != 9 || !slices.Equal(s.Match.UnifyingChars, []string{"-"}) {
		t.Errorf("match = %+v", s.Match)
	}
	if s.Clients.ThirdParty.ShortName != "LUA" || s.Clients.ThirdParty.AlwaysOnTop == nil {
		t.Errorf("third_party = %+v", s.Clients.ThirdParty)
	}
	if !s.Clients.ThirdParty.Enabled {
		t.Error("unset field lost its default")
	}
	if s.Scripts.Timeout.Std() != 500*time.Millisecond {
		t.Errorf("scripts.timeout = %v", s.Scripts.Timeout.Std())
	}

	bad := filepath.Join(dir, "bad.yml")
	writeFile(t, bad, "match:\n  bogus: 1\n")
	var perr *ParseError
	if _, err := Load(bad); !errors.As(err, &perr) {
		t.Errorf("Load unknown YAML key = %v, want ParseError", err)
	}

	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "")
	if _, err := Load(empty); err != nil {
		t.Errorf("Load empty YAML: %v", err)
	}
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/stormcomplete/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STORM_"

// Load reads the settings file at path over the defaults and applies
// environment overrides. A missing file is not an error; an empty path
// skips the file.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := decode(s, path, data); err != nil {
				return nil, err
			}
		}
	}

	if err := applyEnv(s, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes TOML data over the defaults, without environment overrides.
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := decode(s, "<input>", data); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// decode reads data over s. Files named *.yaml or *.yml are YAML; everything
// else is TOML.
func decode(s *Settings, source string, data []byte) error {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return decodeYAML(s, source, data)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		perr := &ParseError{Path: source, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

func decodeYAML(s *Settings, source string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: source, Err: err}
	}
	return nil
}

// Validate reports the first setting with an unusable value.
func (s *Settings) Validate() error {
	checks := []struct {
		path string
		bad  bool
		msg  string
		val  any
	}{
		{"match.max_results", s.Match.MaxResults < 0, "must not be negative", s.Match.MaxResults},
		{"match.look_ahead", s.Match.LookAhead < 0, "must not be negative", s.Match.LookAhead},
		{"match.fuzzy_cutoff", s.Match.FuzzyCutoff < 0 || s.Match.FuzzyCutoff > 1, "must be between 0 and 1", s.Match.FuzzyCutoff},
		{"clients.lsp.pull_limit", s.Clients.LSP.PullLimit < 0, "must not be negative", s.Clients.LSP.PullLimit},
		{"clients.third_party.pull_limit", s.Clients.ThirdParty.PullLimit < 0, "must not be negative", s.Clients.ThirdParty.PullLimit},
		{"bridge.multipart", s.Bridge.Multipart < 0, "must not be negative", s.Bridge.Multipart},
		{"scripts.timeout", s.Scripts.Timeout < 0, "must not be negative", s.Scripts.Timeout.Std()},
		{"cache.chunk", s.Cache.Chunk < 0, "must not be negative", s.Cache.Chunk},
		{"cache.ttl", s.Cache.TTL < 0, "must not be negative", s.Cache.TTL.Std()},
		{"log.level", !validLevel(s.Log.Level), "must be debug, info, warn or error", s.Log.Level},
	}
	for _, c := range checks {
		if c.bad {
			return &ValidationError{Path: c.path, Message: c.msg, Value: c.val}
		}
	}
	for _, u := range s.Match.UnifyingChars {
		if len([]rune(u)) != 1 {
			return &ValidationError{Path: "match.unifying_chars", Message: "entries must be single characters", Value: u}
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// LogLevel returns the configured logging level.
func (s *Settings) LogLevel() logging.Level {
	return logging.ParseLevel(s.Log.Level)
}

type envSetter func(s *Settings, value string) error

// envMapping lists the supported environment overrides.
func envMapping() map[string]envSetter {
	return map[string]envSetter{
		"STORM_LOG_LEVEL":           str(func(s *Settings) *string { return &s.Log.Level }),
		"STORM_CACHE_DIR":           str(func(s *Settings) *string { return &s.Cache.Dir }),
		"STORM_CACHE_CHUNK":         integer(func(s *Settings) *int { return &s.Cache.Chunk }),
		"STORM_CACHE_TTL":           duration(func(s *Settings) *Duration { return &s.Cache.TTL }),
		"STORM_SCRIPTS_DIR":         str(func(s *Settings) *string { return &s.Scripts.Dir }),
		"STORM_SCRIPTS_TIMEOUT":     duration(func(s *Settings) *Duration { return &s.Scripts.Timeout }),
		"STORM_BRIDGE_MULTIPART":    integer(func(s *Settings) *int { return &s.Bridge.Multipart }),
		"STORM_MATCH_MAX_RESULTS":   integer(func(s *Settings) *int { return &s.Match.MaxResults }),
		"STORM_MATCH_LOOK_AHEAD":    integer(func(s *Settings) *int { return &s.Match.LookAhead }),
		"STORM_MATCH_FUZZY_CUTOFF":  float(func(s *Settings) *float64 { return &s.Match.FuzzyCutoff }),
		"STORM_LSP_ENABLED":         boolean(func(s *Settings) *bool { return &s.Clients.LSP.Enabled }),
		"STORM_LSP_PULL_LIMIT":      integer(func(s *Settings) *int { return &s.Clients.LSP.PullLimit }),
		"STORM_INLINE_ENABLED":      boolean(func(s *Settings) *bool { return &s.Clients.Inline.Enabled }),
		"STORM_INLINE_LIVE_PULLING": boolean(func(s *Settings) *bool { return &s.Clients.Inline.LivePulling }),
		"STORM_THIRD_PARTY_ENABLED": boolean(func(s *Settings) *bool { return &s.Clients.ThirdParty.Enabled }),
	}
}

// EnvNames returns the supported environment variables, sorted.
func EnvNames() []string {
	m := envMapping()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applyEnv(s *Settings, lookup func(string) (string, bool)) error {
	for _, name := range EnvNames() {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envMapping()[name](s, value); err != nil {
			return &ValidationError{Path: name, Message: err.Error(), Value: value}
		}
	}
	return nil
}

func str(field func(*Settings) *string) envSetter {
	return func(s *Settings, v string) error {
		*field(s) = v
		return nil
	}
}

func integer(field func(*Settings) *int) envSetter {
	return func(s *Settings, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not an integer")
		}
		*field(s) = n
		return nil
	}
}

func float(field func(*Settings) *float64) envSetter {
	return func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("not a number")
		}
		*field(s) = f
		return nil
	}
}

func boolean(field func(*Settings) *bool) envSetter {
	return func(s *Settings, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not a boolean")
		}
		*field(s) = b
		return nil
	}
}

func duration(field func(*Settings) *Duration) envSetter {
	return func(s *Settings, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not a duration")
		}
		*field(s) = Duration(d)
		return nil
	}
}

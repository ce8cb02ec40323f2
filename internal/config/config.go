// Package config loads stormcomplete settings.
//
// Settings come from defaults, overlaid by a TOML file, overlaid by STORM_*
// environment variables. A Watcher reloads the file when it changes and
// publishes the new settings.
package config

import (
	"strings"
	"time"

	"github.com/dshills/stormcomplete/internal/completion"
)

// Settings is the complete configuration.
type Settings struct {
	Match   MatchSettings   `toml:"match" yaml:"match"`
	Clients ClientsSettings `toml:"clients" yaml:"clients"`
	Bridge  BridgeSettings  `toml:"bridge" yaml:"bridge"`
	Scripts ScriptSettings  `toml:"scripts" yaml:"scripts"`
	Cache   CacheSettings   `toml:"cache" yaml:"cache"`
	Log     LogSettings     `toml:"log" yaml:"log"`
}

// MatchSettings tune fuzzy matching.
type MatchSettings struct {
	// UnifyingChars are extra characters treated as part of a word.
	UnifyingChars []string `toml:"unifying_chars" yaml:"unifying_chars"`
	MaxResults    int      `toml:"max_results" yaml:"max_results"`
	LookAhead     int      `toml:"look_ahead" yaml:"look_ahead"`
	FuzzyCutoff   float64  `toml:"fuzzy_cutoff" yaml:"fuzzy_cutoff"`
}

// ClientSettings describe one completion client.
type ClientSettings struct {
	Enabled      bool    `toml:"enabled" yaml:"enabled"`
	ShortName    string  `toml:"short_name" yaml:"short_name"`
	WeightAdjust float64 `toml:"weight_adjust" yaml:"weight_adjust"`

	// AlwaysOnTop: omitted pins nothing, [] pins every provider.
	AlwaysOnTop []string `toml:"always_on_top" yaml:"always_on_top"`

	PullLimit   int  `toml:"pull_limit" yaml:"pull_limit"`
	LivePulling bool `toml:"live_pulling" yaml:"live_pulling"`
}

// ClientsSettings groups the clients.
type ClientsSettings struct {
	LSP        ClientSettings `toml:"lsp" yaml:"lsp"`
	Inline     ClientSettings `toml:"inline" yaml:"inline"`
	ThirdParty ClientSettings `toml:"third_party" yaml:"third_party"`
}

// BridgeSettings configure the provider bridge.
type BridgeSettings struct {
	// Multipart is the page width providers use for long replies.
	Multipart int `toml:"multipart" yaml:"multipart"`
}

// ScriptSettings configure the Lua third-party sources.
type ScriptSettings struct {
	Dir     string   `toml:"dir" yaml:"dir"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// CacheSettings configure the completion cache.
type CacheSettings struct {
	// Dir holds the badger database; empty keeps the cache in memory.
	Dir   string   `toml:"dir" yaml:"dir"`
	Chunk int      `toml:"chunk" yaml:"chunk"`
	TTL   Duration `toml:"ttl" yaml:"ttl"`
}

// LogSettings configure logging.
type LogSettings struct {
	Level string `toml:"level" yaml:"level"`
}

// Duration is a time.Duration written as a string such as "60ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Match: MatchSettings{
			UnifyingChars: []string{"-", "_"},
			MaxResults:    33,
			LookAhead:     2,
			FuzzyCutoff:   0.6,
		},
		Clients: ClientsSettings{
			LSP: ClientSettings{
				Enabled:      true,
				ShortName:    "LSP",
				WeightAdjust: 0.5,
			},
			Inline: ClientSettings{
				Enabled:     true,
				ShortName:   "INL",
				LivePulling: true,
			},
			ThirdParty: ClientSettings{
				Enabled:   true,
				ShortName: "3P",
			},
		},
		Bridge: BridgeSettings{Multipart: 100},
		Scripts: ScriptSettings{
			Timeout: Duration(2 * time.Second),
		},
		Cache: CacheSettings{Chunk: completion.DefaultChunk},
		Log:   LogSettings{Level: "info"},
	}
}

// MatchOptions converts the match settings for the completion workers.
func (s *Settings) MatchOptions() completion.MatchOptions {
	return completion.MatchOptions{
		UnifyingChars: strings.Join(s.Match.UnifyingChars, ""),
		MaxResults:    s.Match.MaxResults,
		LookAhead:     s.Match.LookAhead,
		FuzzyCutoff:   s.Match.FuzzyCutoff,
	}
}

// Options converts a client's settings for the completion workers.
func (c ClientSettings) Options() completion.ClientOptions {
	return completion.ClientOptions{
		ShortName:    c.ShortName,
		WeightAdjust: c.WeightAdjust,
		AlwaysOnTop:  c.AlwaysOnTop,
		PullLimit:    c.PullLimit,
		LivePulling:  c.LivePulling,
	}
}

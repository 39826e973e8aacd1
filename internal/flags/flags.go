// Package flags holds the externally managed gateway configuration: provider
// enable flags, the global kill-switch, prices and tuning knobs. The file is
// TOML and is reloaded when it changes on disk.
package flags

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const (
	BackendQuality = "quality"
	BackendEconomy = "economy"
)

type ProviderConfig struct {
	// Kind selects the adapter: "openai" (chat-completions compatible) or "gemini".
	Kind           string  `toml:"kind"`
	Enabled        bool    `toml:"enabled"`
	Name           string  `toml:"name"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	APIKeyEnv      string  `toml:"api_key_env"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	InputPerMTok   float64 `toml:"input_per_mtok"`
	OutputPerMTok  float64 `toml:"output_per_mtok"`
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type CompactionConfig struct {
	Threshold int `toml:"threshold"`
	Keep      int `toml:"keep"`
}

type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
	TTLSeconds int `toml:"ttl_seconds"`
	MaxLength  int `toml:"max_length"`
}

type GatewayConfig struct {
	// UnlimitedMode is the global kill-switch: every caller is treated as pro.
	UnlimitedMode  bool                      `toml:"unlimited_mode"`
	FreeDailyLimit int                       `toml:"free_daily_limit"`
	ResetTimezone  string                    `toml:"reset_timezone"`
	UpgradeURL     string                    `toml:"upgrade_url"`
	Compaction     CompactionConfig          `toml:"compaction"`
	Cache          CacheConfig               `toml:"cache"`
	Providers      map[string]ProviderConfig `toml:"providers"`
	Prompts        map[string]string         `toml:"prompts"`

	location    *time.Location
	locationFor string
}

// Location resolves ResetTimezone, falling back to UTC. Snapshots handed to a
// Store carry the resolved zone.
func (g *GatewayConfig) Location() *time.Location {
	if g.location != nil && g.locationFor == g.ResetTimezone {
		return g.location
	}
	return loadLocation(g.ResetTimezone)
}

func (g *GatewayConfig) resolveLocation() {
	g.location = loadLocation(g.ResetTimezone)
	g.locationFor = g.ResetTimezone
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (g *GatewayConfig) Provider(backend string) (ProviderConfig, bool) {
	p, ok := g.Providers[backend]
	return p, ok
}

// Default returns the configuration used when no file is present.
func Default() *GatewayConfig {
	return &GatewayConfig{
		FreeDailyLimit: 5,
		ResetTimezone:  "UTC",
		UpgradeURL:     "/pricing",
		Compaction:     CompactionConfig{Threshold: 12, Keep: 10},
		Cache:          CacheConfig{MaxEntries: 500, TTLSeconds: 3600, MaxLength: 120},
		Providers: map[string]ProviderConfig{
			BackendQuality: {
				Kind:           "openai",
				Enabled:        true,
				Name:           "deepseek",
				BaseURL:        "https://api.deepseek.com/v1",
				Model:          "deepseek-chat",
				APIKeyEnv:      "DEEPSEEK_API_KEY",
				Temperature:    0.7,
				MaxTokens:      800,
				TimeoutSeconds: 30,
				InputPerMTok:   0.27,
				OutputPerMTok:  1.10,
			},
			BackendEconomy: {
				Kind:           "openai",
				Enabled:        true,
				Name:           "groq",
				BaseURL:        "https://api.groq.com/openai/v1",
				Model:          "llama-3.1-8b-instant",
				APIKeyEnv:      "GROQ_API_KEY",
				Temperature:    0.7,
				MaxTokens:      600,
				TimeoutSeconds: 20,
				InputPerMTok:   0.05,
				OutputPerMTok:  0.08,
			},
		},
		Prompts: map[string]string{},
	}
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*GatewayConfig, error) {
	cfg := Default()
	// Provider blocks replace the defaults wholesale when present.
	cfg.Providers = nil
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode gateway config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = Default().Providers
	}
	if cfg.Prompts == nil {
		cfg.Prompts = map[string]string{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *GatewayConfig) validate() error {
	if g.FreeDailyLimit < 0 {
		return fmt.Errorf("free_daily_limit must not be negative")
	}
	if g.Compaction.Keep <= 0 || g.Compaction.Threshold < g.Compaction.Keep {
		return fmt.Errorf("compaction keep must be positive and not exceed threshold")
	}
	if g.Cache.MaxEntries < 0 || g.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache limits must not be negative")
	}
	for backend, p := range g.Providers {
		if backend != BackendQuality && backend != BackendEconomy {
			return fmt.Errorf("unknown provider backend %q", backend)
		}
		if p.Kind != "openai" && p.Kind != "gemini" {
			return fmt.Errorf("provider %s: unsupported kind %q", backend, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", backend)
		}
	}
	if _, err := time.LoadLocation(g.ResetTimezone); g.ResetTimezone != "" && err != nil {
		return fmt.Errorf("invalid reset_timezone: %w", err)
	}
	g.resolveLocation()
	return nil
}

// Store serves the latest successfully parsed configuration.
type Store struct {
	path    string
	current atomic.Pointer[GatewayConfig]
}

// NewStore wraps a fixed configuration, used when no file is configured and in tests.
func NewStore(cfg *GatewayConfig) *Store {
	s := &Store{}
	s.Set(cfg)
	return s
}

// Load reads path; a missing file yields the defaults.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("Gateway config not found, using defaults")
		s.Set(Default())
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return s, nil
}

func (s *Store) Current() *GatewayConfig {
	return s.current.Load()
}

// Set replaces the active configuration.
func (s *Store) Set(cfg *GatewayConfig) {
	cfg.resolveLocation()
	s.current.Store(cfg)
}

func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to read gateway config, keeping previous")
		return
	}
	// Truncate-then-write produces an empty intermediate read.
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	cfg, err := Parse(data)
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Invalid gateway config, keeping previous")
		return
	}
	s.current.Store(cfg)
	log.Info().
		Bool("unlimited_mode", cfg.UnlimitedMode).
		Bool("quality_enabled", cfg.Providers[BackendQuality].Enabled).
		Bool("economy_enabled", cfg.Providers[BackendEconomy].Enabled).
		Msg("Gateway config reloaded")
}

// Watch reloads the file on change until ctx is done. The parent directory is
// watched so that editors replacing the file atomically are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					s.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Gateway config watcher error")
			}
		}
	}()
	return nil
}

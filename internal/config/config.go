package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbegin/drumseq-go/internal/engine"
)

// StoreBackend selects where the pattern snapshot lives.
type StoreBackend string

const (
	StoreFile   StoreBackend = "file"
	StoreSQLite StoreBackend = "sqlite"
)

// Config is the on-disk configuration. Command-line flags override it.
type Config struct {
	SampleRate   int          `json:"sampleRate"`
	SampleDir    string       `json:"sampleDir,omitempty"`
	WatchSamples bool         `json:"watchSamples,omitempty"`
	Store        StoreBackend `json:"store"`
	StorePath    string       `json:"storePath,omitempty"`
	SnapshotKey  string       `json:"snapshotKey,omitempty"`
	MIDIIn       string       `json:"midiIn,omitempty"`
	LogLevel     string       `json:"logLevel,omitempty"`
	LogFile      string       `json:"logFile,omitempty"`
	Glue         bool         `json:"glue,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		SampleRate:  48000,
		SampleDir:   "samples",
		Store:       StoreFile,
		SnapshotKey: "drumseq.seq",
		LogLevel:    "info",
	}
}

// Dir returns ~/.config/drumseq.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "drumseq"), nil
}

// Path returns the default config.json location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config at path, or at Path() when path is empty. A missing
// file yields the defaults. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, or to Path() when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.SampleRate < engine.MinSampleRate {
		return fmt.Errorf("sampleRate must be at least %d, got %d", engine.MinSampleRate, c.SampleRate)
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want file or sqlite)", c.Store)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ResolvedStorePath is StorePath, or a default under Dir() for the backend.
func (c *Config) ResolvedStorePath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if c.Store == StoreSQLite {
		return filepath.Join(dir, "drumseq.sqlite3"), nil
	}
	return filepath.Join(dir, "snapshots"), nil
}

// ParseLevel maps debug|info|warn|error to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Fatalf("got %+v", cfg)
	}
}

func TestSaveThenLoadDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := DefaultConfig()
	cfg.Store = StoreSQLite
	cfg.MIDIIn = "IAC Driver Bus 1"
	cfg.WatchSamples = true
	if err := cfg.Save(""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".config", "drumseq", "config.json")); err != nil {
		t.Fatalf("config not at default path: %v", err)
	}
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("round trip: got %+v want %+v", got, cfg)
	}
	p, err := got.ResolvedStorePath()
	if err != nil || p != filepath.Join(home, ".config", "drumseq", "drumseq.sqlite3") {
		t.Fatalf("store path = %q, %v", p, err)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte(`{"sampleRate": 44100}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SampleRate != 44100 || cfg.Store != StoreFile || cfg.SnapshotKey != "drumseq.seq" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, body := range []string{`{`, `{"store": "redis"}`, `{"sampleRate": -1}`, `{"sampleRate": 20}`, `{"logLevel": "loud"}`} {
		path := filepath.Join(t.TempDir(), "c.json")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("Load(%s) should fail", body)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

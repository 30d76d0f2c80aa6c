package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	drumseq "github.com/cbegin/drumseq-go"
	"github.com/cbegin/drumseq-go/internal/config"
	"github.com/cbegin/drumseq-go/internal/midi"
	"github.com/cbegin/drumseq-go/internal/snapshot"
	"github.com/cbegin/drumseq-go/internal/tui"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default ~/.config/drumseq/config.json)")
		sampleRate = flag.Int("sample-rate", 0, "output sample rate")
		sampleDir  = flag.String("samples", "", "directory holding kick.wav, snare.ogg, ...")
		watch      = flag.Bool("watch", false, "rebind samples when files in the sample directory change")
		store      = flag.String("store", "", "snapshot store: file|sqlite")
		storePath  = flag.String("store-path", "", "snapshot directory (file) or database (sqlite)")
		midiIn     = flag.String("midi-in", "", "MIDI input port name to play drums from")
		logLevel   = flag.String("log-level", "", "debug|info|warn|error")
		logFile    = flag.String("log-file", "", "write logs to this file")
		glue       = flag.Bool("glue", false, "compress and limit the master mix")
		renderPath = flag.String("render", "", "bounce the stored pattern to this WAV file and exit")
		bars       = flag.Int("bars", 4, "with -render, number of bars to bounce")
		listMIDI   = flag.Bool("list-midi", false, "list MIDI input ports and exit")
	)
	var bindings []string
	flag.Func("sample", "bind voice=location (file or URL); repeatable", func(arg string) error {
		if _, _, err := drumseq.ParseSampleBinding(arg); err != nil {
			return err
		}
		bindings = append(bindings, arg)
		return nil
	})
	flag.Parse()

	if *listMIDI {
		for _, name := range midi.InPorts() {
			fmt.Println(name)
		}
		gomidi.CloseDriver()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sample-rate":
			cfg.SampleRate = *sampleRate
		case "samples":
			cfg.SampleDir = *sampleDir
		case "watch":
			cfg.WatchSamples = *watch
		case "store":
			cfg.Store = config.StoreBackend(*store)
		case "store-path":
			cfg.StorePath = *storePath
		case "midi-in":
			cfg.MIDIIn = *midiIn
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		case "glue":
			cfg.Glue = *glue
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	logger, closeLog, err := openLogger(cfg, *renderPath != "")
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	if *renderPath != "" {
		if err := render(cfg, st, logger, bindings, *renderPath, *bars); err != nil {
			log.Fatal(err)
		}
		return
	}

	session, err := drumseq.NewSession(
		drumseq.WithSampleRate(cfg.SampleRate),
		drumseq.WithStore(st),
		drumseq.WithSnapshotKey(cfg.SnapshotKey),
		drumseq.WithSampleDir(cfg.SampleDir),
		drumseq.WithWatchSamples(cfg.WatchSamples),
		drumseq.WithGlue(cfg.Glue),
		drumseq.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()
	loadBindings(session, bindings)

	if cfg.MIDIIn != "" {
		in, err := midi.Open(cfg.MIDIIn, func(h midi.Hit) {
			if err := session.TriggerGain(h.Voice, h.Gain); err != nil {
				logger.Warn("midi hit dropped", "voice", h.Voice, "err", err)
			}
		}, logger)
		if err != nil {
			logger.Warn("midi input unavailable", "port", cfg.MIDIIn, "err", err)
		} else {
			defer in.Close()
		}
		defer gomidi.CloseDriver()
	}

	if _, err := tea.NewProgram(tui.NewModel(session), tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}

func openLogger(cfg *config.Config, console bool) (*slog.Logger, func(), error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = io.Discard
	closeFn := func() {}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeFn = func() { f.Close() }
	case console:
		w = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func openStore(cfg *config.Config) (snapshot.Store, func(), error) {
	path, err := cfg.ResolvedStorePath()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store == config.StoreSQLite {
		db, err := snapshot.OpenSQLStore(path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}
	return snapshot.NewFileStore(path), func() {}, nil
}

// loadBindings loads -sample arguments. A failed load leaves the slot
// synthesized and is only logged.
func loadBindings(session *drumseq.Session, bindings []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, arg := range bindings {
		v, location, err := drumseq.ParseSampleBinding(arg)
		if err != nil {
			continue
		}
		_ = session.LoadSample(ctx, v, location)
	}
}

func render(cfg *config.Config, st snapshot.Store, logger *slog.Logger, bindings []string, path string, bars int) error {
	session, err := drumseq.NewSession(
		drumseq.WithOffline(),
		drumseq.WithSampleRate(cfg.SampleRate),
		drumseq.WithStore(st),
		drumseq.WithSnapshotKey(cfg.SnapshotKey),
		drumseq.WithGlue(cfg.Glue),
		drumseq.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	if cfg.SampleDir != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		session.Engine().LoadSlots(ctx, cfg.SampleDir)
		cancel()
	}
	loadBindings(session, bindings)

	start := time.Now()
	samples, err := session.Render(bars)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := drumseq.WriteWAV(f, samples, cfg.SampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	logger.Info("bounce written", "path", path, "bars", bars,
		"size", humanize.Bytes(uint64(info.Size())), "took", time.Since(start).Round(time.Millisecond))
	fmt.Printf("wrote %s (%d bars, %s)\n", path, bars, humanize.Bytes(uint64(info.Size())))
	return nil
}

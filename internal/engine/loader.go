package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// SlotExtensions is the order in which asset files are tried per slot.
var SlotExtensions = []string{".wav", ".ogg", ".mp3"}

// AutoLoadVoices are the slots LoadSlots looks for on startup.
var AutoLoadVoices = []Voice{Kick, Snare, Clap, ClosedHat, OpenHat}

const loadConcurrency = 3

// LoadSlots binds whatever drum assets exist in dir, trying SlotExtensions in
// order per slot. A slot with no usable asset keeps whatever it holds, so a
// sample bound by hand survives a later auto-load. It returns the number of
// slots bound.
func (e *Engine) LoadSlots(ctx context.Context, dir string) int {
	return e.loadSlots(ctx, dir, false)
}

func (e *Engine) loadSlots(ctx context.Context, dir string, revert bool) int {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	loaded := make([]bool, len(AutoLoadVoices))
	for i, v := range AutoLoadVoices {
		g.Go(func() error {
			loaded[i] = e.loadSlot(ctx, dir, v, revert)
			return nil
		})
	}
	_ = g.Wait()
	n := 0
	for _, ok := range loaded {
		if ok {
			n++
		}
	}
	return n
}

// loadSlot binds the first decodable asset for v. With revert set, a slot
// whose assets are gone falls back to synthesis.
func (e *Engine) loadSlot(ctx context.Context, dir string, v Voice, revert bool) bool {
	for _, ext := range SlotExtensions {
		path := filepath.Join(dir, v.SlotName()+ext)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		buf, err := e.DecodeLocation(ctx, path)
		if err != nil {
			e.log.Debug("sample slot skipped", "slot", v.SlotName(), "path", path, "err", err)
			continue
		}
		e.BindSample(v, buf)
		e.log.Info("sample slot bound", "slot", v.SlotName(), "path", path,
			"size", humanize.Bytes(uint64(info.Size())), "seconds", buf.Duration())
		return true
	}
	if !revert {
		return false
	}
	if e.HasSample(v) {
		e.log.Info("sample slot reverted to synthesis", "slot", v.SlotName())
	}
	e.BindSample(v, nil)
	return false
}

// slotForFile maps an asset file name back to its voice.
func slotForFile(name string) (Voice, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	known := false
	for _, x := range SlotExtensions {
		if ext == x {
			known = true
			break
		}
	}
	if !known {
		return 0, false
	}
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	for _, v := range AutoLoadVoices {
		if v.SlotName() == base {
			return v, true
		}
	}
	return 0, false
}

// WatchSlots reloads a slot whenever one of its asset files changes in dir,
// until ctx is done. ready, if non-nil, is closed once the watch is armed.
func (e *Engine) WatchSlots(ctx context.Context, dir string, ready chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			v, ok := slotForFile(ev.Name)
			if !ok {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				e.log.Debug("sample asset changed", "path", ev.Name, "op", ev.Op.String())
				e.loadSlot(ctx, dir, v, true)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				e.loadSlots(ctx, dir, true)
				continue
			}
			e.log.Warn("sample watch error", "err", err)
		}
	}
}

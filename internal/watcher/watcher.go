// Package watcher invalidates the cached ffmpeg location when the binary is
// added, replaced or removed in one of the directories it may live in.
package watcher

import (
	"context"
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Invalidator drops a cached lookup.
type Invalidator interface {
	Invalidate()
}

type Watcher struct {
	target Invalidator
	w      *fsnotify.Watcher
	roots  []string
	names  map[string]bool
	mu     sync.Mutex
	paused bool
	// OnInvalidate, if set, is called after every invalidation.
	OnInvalidate func(path string)
}

// New watches dirs for changes to an ffmpeg binary.
func New(target Invalidator, dirs []string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	names := map[string]bool{"ffmpeg": true}
	if runtime.GOOS == "windows" {
		names["ffmpeg.exe"] = true
	}
	return &Watcher{target: target, w: w, roots: dirs, names: names}, nil
}

// Start registers the directories and processes events until ctx is done.
func (wr *Watcher) Start(ctx context.Context) error {
	wr.registerAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-wr.w.Events:
			if !ok {
				return nil
			}
			wr.handleEvent(ev)
		case err, ok := <-wr.w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Locator] watcher error: %v", err)
		}
	}
}

func (wr *Watcher) Close() error { return wr.w.Close() }

func (wr *Watcher) Pause()       { wr.mu.Lock(); wr.paused = true; wr.mu.Unlock() }
func (wr *Watcher) Resume()      { wr.mu.Lock(); wr.paused = false; wr.mu.Unlock() }
func (wr *Watcher) Paused() bool { wr.mu.Lock(); defer wr.mu.Unlock(); return wr.paused }

// Watched returns the directories that were registered successfully.
func (wr *Watcher) Watched() []string {
	return wr.w.WatchList()
}

func (wr *Watcher) registerAll() {
	for _, root := range wr.roots {
		if err := wr.w.Add(root); err != nil {
			log.Printf("[Locator] cannot watch %s: %v", root, err)
		}
	}
}

func (wr *Watcher) handleEvent(ev fsnotify.Event) {
	if wr.Paused() {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
		return
	}
	if !wr.names[strings.ToLower(filepath.Base(ev.Name))] {
		return
	}
	wr.target.Invalidate()
	log.Printf("[Locator] %s changed (%s), cached location dropped", ev.Name, ev.Op)
	if wr.OnInvalidate != nil {
		wr.OnInvalidate(ev.Name)
	}
}

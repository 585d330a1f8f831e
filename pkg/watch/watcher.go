// Package watch rebuilds a configuration whenever a file it was built from changes.
//
// The watched set is the dependency list reported by the last build, so adding an
// import to the entry file starts watching the imported file on the next rebuild.
// Directories are watched rather than files because editors usually replace a file
// on save. Events are debounced and a rebuild only runs when the content of at
// least one dependency actually changed.
package watch

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// DefaultDebounce is the quiet period after the last file event before a rebuild.
const DefaultDebounce = 200 * time.Millisecond

// Rebuild reasons.
const (
	ReasonInitial = "initial"
	ReasonChange  = "change"
	ReasonPolicy  = "policy"
)

// Trigger describes why a build runs.
type Trigger struct {
	Reason string
	// Changed lists the dependencies whose content changed, for ReasonChange.
	Changed []string
}

// BuildFunc runs one build and returns the files it depended on. The list may be
// empty when the build failed before dependencies were known.
type BuildFunc func(ctx context.Context, t Trigger) ([]string, error)

// Config configures a Watcher.
type Config struct {
	Entry    string
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watcher reruns a build when its dependencies change.
type Watcher struct {
	entry    string
	debounce time.Duration
	build    BuildFunc
	logger   zerolog.Logger

	fsw    *fsnotify.Watcher
	manual chan string

	mu   sync.Mutex
	deps map[string]string // absolute path -> content fingerprint
	dirs map[string]bool
}

// New creates a watcher for entry. Nothing is watched until Run.
func New(cfg Config, build BuildFunc) (*Watcher, error) {
	if cfg.Entry == "" {
		return nil, fmt.Errorf("entry is required")
	}
	if build == nil {
		return nil, fmt.Errorf("build function is required")
	}
	entry, err := filepath.Abs(cfg.Entry)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entry: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		entry:    entry,
		debounce: debounce,
		build:    build,
		logger:   cfg.Logger.With().Str("component", "watcher").Str("entry", cfg.Entry).Logger(),
		fsw:      fsw,
		manual:   make(chan string, 1),
		deps:     make(map[string]string),
		dirs:     make(map[string]bool),
	}, nil
}

// Trigger requests a rebuild for reason. Requests made while one is already
// pending are merged.
func (w *Watcher) Trigger(reason string) {
	select {
	case w.manual <- reason:
	default:
	}
}

// Dependencies returns the watched files, sorted.
func (w *Watcher) Dependencies() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.deps))
	for p := range w.deps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run builds once and then rebuilds on every change until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	w.rebuild(ctx, Trigger{Reason: ReasonInitial})

	var timer *time.Timer
	var fire <-chan time.Time
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info().Msg("Watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !w.isDependency(path) {
				continue
			}
			w.logger.Debug().Str("file", path).Str("op", event.Op.String()).Msg("Dependency changed")
			pending[path] = true

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			changed := w.changed(pending)
			pending = make(map[string]bool)
			if len(changed) == 0 {
				w.logger.Debug().Msg("Dependency content unchanged, skipping rebuild")
				continue
			}
			w.rebuild(ctx, Trigger{Reason: ReasonChange, Changed: changed})

		case reason := <-w.manual:
			w.rebuild(ctx, Trigger{Reason: reason})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context, t Trigger) {
	w.logger.Info().Str("reason", t.Reason).Strs("changed", t.Changed).Msg("Rebuilding")

	deps, err := w.build(ctx, t)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Build failed, still watching")
	}
	if err := w.setDependencies(deps); err != nil {
		w.logger.Error().Err(err).Msg("Failed to update watched files")
	}
}

// setDependencies replaces the watched set. An empty list keeps the previous set
// so a build that failed early still rebuilds when the broken file is fixed.
func (w *Watcher) setDependencies(deps []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := make(map[string]string, len(deps)+1)
	if len(deps) == 0 {
		for p := range w.deps {
			next[p] = ""
		}
	}
	next[w.entry] = ""
	for _, d := range deps {
		abs, err := filepath.Abs(d)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", d, err)
		}
		next[abs] = ""
	}

	dirs := make(map[string]bool)
	for p := range next {
		next[p] = fingerprint(p)
		dirs[filepath.Dir(p)] = true
	}

	var firstErr error
	for dir := range dirs {
		if w.dirs[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch directory")
			if firstErr == nil {
				firstErr = err
			}
			delete(dirs, dir)
		}
	}
	for dir := range w.dirs {
		if !dirs[dir] {
			_ = w.fsw.Remove(dir)
		}
	}

	w.deps = next
	w.dirs = dirs
	w.logger.Debug().Int("files", len(next)).Int("dirs", len(dirs)).Msg("Watched set updated")
	return firstErr
}

func (w *Watcher) isDependency(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.deps[path]
	return ok
}

// changed returns the pending paths whose fingerprint differs from the recorded one.
func (w *Watcher) changed(pending map[string]bool) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for p := range pending {
		prev, ok := w.deps[p]
		if !ok {
			continue
		}
		if fp := fingerprint(p); fp != prev {
			w.deps[p] = fp
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// fingerprint hashes the content of path. Missing files hash to "".
func fingerprint(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package watch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

type recorder struct {
	deps     []string
	triggers chan Trigger
}

func (r *recorder) build(_ context.Context, t Trigger) ([]string, error) {
	r.triggers <- t
	return r.deps, nil
}

func (r *recorder) next(t *testing.T) Trigger {
	t.Helper()
	select {
	case tr := <-r.triggers:
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a build")
		return Trigger{}
	}
}

func (r *recorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case tr := <-r.triggers:
		t.Fatalf("unexpected build %+v", tr)
	case <-time.After(wait):
	}
}

func startWatcher(t *testing.T, entry string, r *recorder) *Watcher {
	t.Helper()
	w, err := New(Config{Entry: entry, Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()}, r.build)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestWatcherRebuildsOnDependencyChange(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.conf.ts")
	lib := filepath.Join(dir, "lib", "ports.ts")
	if err := os.MkdirAll(filepath.Dir(lib), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, entry, `import { port } from "./lib/ports"; export default { port };`)
	writeFile(t, lib, `export const port = 80;`)

	r := &recorder{deps: []string{entry, lib}, triggers: make(chan Trigger, 8)}
	w := startWatcher(t, entry, r)

	if tr := r.next(t); tr.Reason != ReasonInitial {
		t.Fatalf("first build reason = %q, want %q", tr.Reason, ReasonInitial)
	}
	// Wait until the initial build has registered its dependencies.
	deadline := time.Now().Add(5 * time.Second)
	for len(w.Dependencies()) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Dependencies() = %v", w.Dependencies())
		}
		time.Sleep(5 * time.Millisecond)
	}

	writeFile(t, lib, `export const port = 8080;`)

	tr := r.next(t)
	if tr.Reason != ReasonChange {
		t.Fatalf("reason = %q, want %q", tr.Reason, ReasonChange)
	}
	if !reflect.DeepEqual(tr.Changed, []string{lib}) {
		t.Errorf("Changed = %v, want [%s]", tr.Changed, lib)
	}

	// Files outside the dependency set are ignored.
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	r.expectNone(t, 150*time.Millisecond)
}

func TestWatcherManualTrigger(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.conf.ts")
	writeFile(t, entry, `export default 1;`)

	r := &recorder{triggers: make(chan Trigger, 8)}
	w := startWatcher(t, entry, r)
	r.next(t)

	w.Trigger(ReasonPolicy)
	if tr := r.next(t); tr.Reason != ReasonPolicy {
		t.Errorf("reason = %q, want %q", tr.Reason, ReasonPolicy)
	}
}

func TestWatcherDependencySet(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.conf.ts")
	lib := filepath.Join(dir, "lib.ts")
	writeFile(t, entry, "a")
	writeFile(t, lib, "b")

	w, err := New(Config{Entry: entry, Logger: zerolog.Nop()}, func(context.Context, Trigger) ([]string, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.fsw.Close()

	if err := w.setDependencies([]string{entry, lib}); err != nil {
		t.Fatal(err)
	}
	if got := w.Dependencies(); !reflect.DeepEqual(got, []string{lib, entry}) {
		t.Errorf("Dependencies() = %v", got)
	}

	// An empty list from a failed build keeps the previous set.
	if err := w.setDependencies(nil); err != nil {
		t.Fatal(err)
	}
	if got := w.Dependencies(); len(got) != 2 {
		t.Errorf("Dependencies() after failed build = %v", got)
	}

	pending := map[string]bool{lib: true, entry: true}
	if got := w.changed(pending); len(got) != 0 {
		t.Errorf("changed() = %v for untouched files", got)
	}
	writeFile(t, lib, "b")
	if got := w.changed(pending); len(got) != 0 {
		t.Errorf("changed() = %v for identical rewrite", got)
	}
	writeFile(t, lib, "c")
	if got := w.changed(pending); !reflect.DeepEqual(got, []string{lib}) {
		t.Errorf("changed() = %v, want [%s]", got, lib)
	}
}

func TestNewValidates(t *testing.T) {
	build := func(context.Context, Trigger) ([]string, error) { return nil, nil }
	if _, err := New(Config{}, build); err == nil {
		t.Error("expected error for missing entry")
	}
	if _, err := New(Config{Entry: "main.conf.ts"}, nil); err == nil {
		t.Error("expected error for missing build function")
	}
}

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/portraitquiz/internal/config"
)

// writeConfig writes body to path and stamps it with mod so that polling
// sees a change regardless of filesystem timestamp resolution.
func writeConfig(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.yaml")
	writeConfig(t, path, "server:\n  log_level: warn\n", time.Unix(1000, 0))

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != config.LogWarn {
		t.Errorf("log level = %q, want warn", got)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.yaml")
	writeConfig(t, path, "match:\n  threshold: 9\n", time.Unix(1000, 0))
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n", time.Unix(1000, 0))

	var calls []config.ConfigDiff
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		calls = append(calls, config.Diff(old, new))
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	if w.Check() {
		t.Error("Check on an untouched file reported a change")
	}

	// Touched but identical content.
	writeConfig(t, path, "server:\n  log_level: info\n", time.Unix(2000, 0))
	if w.Check() {
		t.Error("identical content reported as a change")
	}

	writeConfig(t, path, "server:\n  log_level: debug\n", time.Unix(3000, 0))
	if !w.Check() {
		t.Fatal("new content not picked up")
	}
	if len(calls) != 1 || !calls[0].LogLevelChanged || calls[0].NewLogLevel != config.LogDebug {
		t.Fatalf("callback diffs = %+v", calls)
	}

	// An invalid revision keeps the previous config.
	writeConfig(t, path, "server:\n  log_level: loud\n", time.Unix(4000, 0))
	if w.Check() {
		t.Error("invalid config accepted")
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("current log level = %q, want debug", got)
	}

	// Fixing it is picked up again.
	writeConfig(t, path, "server:\n  log_level: error\n", time.Unix(5000, 0))
	if !w.Check() {
		t.Fatal("fixed config not picked up")
	}
	if len(calls) != 2 || calls[1].NewLogLevel != config.LogError {
		t.Errorf("callback diffs = %+v", calls)
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.yaml")
	writeConfig(t, path, "match:\n  threshold: 0.7\n", time.Unix(1000, 0))

	var (
		mu  sync.Mutex
		got float64
	)
	changed := make(chan struct{}, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) {
		mu.Lock()
		got = new.Match.Threshold
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	writeConfig(t, path, "match:\n  threshold: 0.9\n", time.Unix(2000, 0))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
	mu.Lock()
	if got != 0.9 {
		t.Errorf("threshold = %g, want 0.9", got)
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

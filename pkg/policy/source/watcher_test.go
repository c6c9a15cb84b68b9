package source

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestNewWatcher(t *testing.T) {
	watcher, err := NewWatcher(nil)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	if watcher.config.DebounceInterval != 500*time.Millisecond {
		t.Errorf("DebounceInterval = %v, want 500ms default", watcher.config.DebounceInterval)
	}
}

func TestWatcher_Watch_DetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "policies.yaml", registryPolicyYAML)

	config := DefaultWatcherConfig()
	config.Path = dir
	config.DebounceInterval = 50 * time.Millisecond

	watcher, err := NewWatcher(config)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	var reloads atomic.Int32
	reloaded := make(chan struct{}, 10)
	onReload := func() error {
		reloads.Add(1)
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = watcher.Watch(ctx, onReload)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(registryPolicyYAML+"\n# touched\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not triggered after file modification")
	}

	if reloads.Load() == 0 {
		t.Error("reload count = 0, want at least 1")
	}
}

func TestWatcher_Watch_DoubleStart(t *testing.T) {
	dir := t.TempDir()

	config := DefaultWatcherConfig()
	config.Path = dir

	watcher, err := NewWatcher(config)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = watcher.Watch(ctx, func() error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)

	if err := watcher.Watch(ctx, func() error { return nil }); err == nil {
		t.Error("second Watch() error = nil, want already running error")
	}
}

func TestWatcher_ShouldProcess(t *testing.T) {
	config := DefaultWatcherConfig()
	config.Path = t.TempDir()

	watcher, err := NewWatcher(config)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"yaml write", fsnotify.Event{Name: "policies.yaml", Op: fsnotify.Write}, true},
		{"yml create", fsnotify.Event{Name: "extra.yml", Op: fsnotify.Create}, true},
		{"chmod only", fsnotify.Event{Name: "policies.yaml", Op: fsnotify.Chmod}, false},
		{"other extension", fsnotify.Event{Name: "notes.txt", Op: fsnotify.Write}, false},
		{"hidden file", fsnotify.Event{Name: ".policies.yaml.swp", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := watcher.shouldProcess(tt.event); got != tt.want {
				t.Errorf("shouldProcess(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestDebouncer_Trigger(t *testing.T) {
	debouncer := NewDebouncer(50 * time.Millisecond)
	defer debouncer.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		debouncer.Trigger(func() { calls.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1 (burst collapsed)", got)
	}
}

func TestDebouncer_Stop_CancelsPending(t *testing.T) {
	debouncer := NewDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	debouncer.Trigger(func() { calls.Add(1) })
	debouncer.Stop()

	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times after Stop(), want 0", got)
	}
}

func TestWatcher_Watch_SurvivesReloadFailure(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "policies.yaml", registryPolicyYAML)

	config := DefaultWatcherConfig()
	config.Path = dir
	config.DebounceInterval = 50 * time.Millisecond

	watcher, err := NewWatcher(config)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	reloaded := make(chan struct{}, 10)
	onReload := func() error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return os.ErrInvalid
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = watcher.Watch(ctx, onReload)
	}()
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := os.WriteFile(path, []byte(registryPolicyYAML), 0o644); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
		select {
		case <-reloaded:
		case <-time.After(2 * time.Second):
			t.Fatalf("reload %d not triggered; watcher did not survive failure", i+1)
		}
		// Let the debouncer settle before the next round.
		time.Sleep(100 * time.Millisecond)
	}
}

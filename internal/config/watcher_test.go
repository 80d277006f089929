package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
services:
  - name: initial
    kind: custom
    base_url: http://one
`)
	w := NewWatcher(path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	go w.Watch(ctx, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(200 * time.Millisecond)
	update := `
services:
  - name: updated
    kind: custom
    base_url: http://two
`
	if err := os.WriteFile(path, []byte(update), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Services) != 1 || cfg.Services[0].Name != "updated" {
			t.Errorf("reloaded services = %+v", cfg.Services)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after config write")
	}
}

func TestWatcherSkipsBrokenConfig(t *testing.T) {
	path := writeConfig(t, `
services:
  - name: initial
    kind: custom
    base_url: http://one
`)
	w := NewWatcher(path, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	go w.Watch(ctx, func(cfg *Config) { reloaded <- cfg })

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("services: [{name: ''}]"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("broken config delivered: %+v", cfg)
	case <-time.After(time.Second):
		// Load failed and was skipped.
	}
}

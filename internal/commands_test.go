package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/crateservice"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/testutil"
)

func testConfig(t *testing.T) (*Config, string) {
	t.Helper()
	root := t.TempDir()
	tmp := t.TempDir()

	cfg := NewDefaultConfig()
	cfg.Scan.Root = root
	cfg.Cache.Dir = filepath.Join(tmp, "cache")
	cfg.SQLite.Path = filepath.Join(tmp, "index.db")
	cfg.Validator.ToolDir = t.TempDir()
	cfg.Validator.Command = []string{"sh", "-c", "exit 0", "sh"}
	cfg.Validator.Timeout = 10 * time.Second
	cfg.Validator.SkipInstall = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg, root
}

func run(t *testing.T, fn func(out *bytes.Buffer) error) string {
	t.Helper()
	var out bytes.Buffer
	if err := fn(&out); err != nil {
		t.Fatalf("command: %v", err)
	}
	return out.String()
}

func TestScanListResolveClear(t *testing.T) {
	cfg, root := testConfig(t)
	crate := testutil.WriteSampleCrate(t, filepath.Join(root, "crate"))
	ctx := context.Background()

	out := run(t, func(w *bytes.Buffer) error {
		return Scan(ctx, WithConfig(cfg), WithOutput(w, io.Discard))
	})
	var res crateservice.RescanResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode scan output %q: %v", out, err)
	}
	if res.Version != 1 || res.LinksCreated != 3 {
		t.Errorf("scan = %+v", res)
	}

	out = run(t, func(w *bytes.Buffer) error {
		return List(ctx, WithConfig(cfg), WithOutput(w, io.Discard))
	})
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if snap.Version != 1 || len(snap.Crates) != 1 || !snap.Crates[0].Valid {
		t.Errorf("snapshot = %+v", snap)
	}

	out = run(t, func(w *bytes.Buffer) error {
		return Resolve(ctx, "data_file.csv", WithConfig(cfg), WithOutput(w, io.Discard))
	})
	if strings.TrimSpace(out) != filepath.Join(crate, "data.csv") {
		t.Errorf("resolve = %q", out)
	}

	run(t, func(w *bytes.Buffer) error {
		return Clear(ctx, WithConfig(cfg), WithOutput(w, io.Discard))
	})
	err := Resolve(ctx, "data_file.csv", WithConfig(cfg), WithOutput(io.Discard, io.Discard))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("resolve after clear: %v", err)
	}
}

func TestListEmptyCache(t *testing.T) {
	cfg, _ := testConfig(t)
	out := run(t, func(w *bytes.Buffer) error {
		return List(context.Background(), WithConfig(cfg), WithOutput(w, io.Discard))
	})
	if !strings.Contains(out, `"version": "0"`) {
		t.Errorf("empty list = %q", out)
	}
}

func TestScanMissingToolDir(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Validator.ToolDir = filepath.Join(t.TempDir(), "missing")
	err := Scan(context.Background(), WithConfig(cfg), WithOutput(io.Discard, io.Discard))
	if err == nil {
		t.Fatal("scan without validator tool should fail")
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	ctx := context.Background()
	if err := Scan(ctx); err == nil {
		t.Error("Scan without config should fail")
	}
	if err := List(ctx); err == nil {
		t.Error("List without config should fail")
	}
	if err := Run(ctx); err == nil {
		t.Error("Run without config should fail")
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(ApplicationConfig{LogFormat: LogFormatJSON}, &buf).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	newLogger(ApplicationConfig{LogFormat: LogFormatText}, &buf).Info("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("text output = %q", buf.String())
	}
}

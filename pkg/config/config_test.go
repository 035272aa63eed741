package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func TestConfig_Validate(t *testing.T) {
	// Helper to get a valid base config for testing
	newValidConfig := func(t *testing.T) Config {
		cfg := NewDefault()
		base := t.TempDir()
		cfg.Source = filepath.Join(base, "source")
		cfg.Replica = filepath.Join(base, "replica")
		cfg.LogFile = filepath.Join(base, "sync.log")
		return cfg
	}

	t.Run("Valid Config", func(t *testing.T) {
		cfg := newValidConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config to pass validation, but got error: %v", err)
		}
	})

	t.Run("Paths Are Made Absolute", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.Source = "relative/src"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !filepath.IsAbs(cfg.Source) {
			t.Errorf("expected absolute source path, got %q", cfg.Source)
		}
	})

	t.Run("Symlinks Are Resolved", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("creating symlinks needs extra privileges on windows")
		}
		cfg := newValidConfig(t)
		if err := os.Mkdir(cfg.Source, 0755); err != nil {
			t.Fatalf("failed to create source: %v", err)
		}
		link := filepath.Join(filepath.Dir(cfg.Source), "source-link")
		if err := os.Symlink(cfg.Source, link); err != nil {
			t.Fatalf("failed to create symlink: %v", err)
		}
		want, err := filepath.EvalSymlinks(cfg.Source)
		if err != nil {
			t.Fatalf("failed to resolve source: %v", err)
		}
		cfg.Source = link
		cfg.LogFile = filepath.Join(link, "sync.log")
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Source != want {
			t.Errorf("expected source %q, got %q", want, cfg.Source)
		}
		if cfg.LogFile != filepath.Join(want, "sync.log") {
			t.Errorf("expected log file below the resolved source, got %q", cfg.LogFile)
		}
	})

	t.Run("Replica Linked Into Source", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("creating symlinks needs extra privileges on windows")
		}
		cfg := newValidConfig(t)
		inner := filepath.Join(cfg.Source, "inner")
		if err := os.MkdirAll(inner, 0755); err != nil {
			t.Fatalf("failed to create source: %v", err)
		}
		if err := os.Symlink(inner, cfg.Replica); err != nil {
			t.Fatalf("failed to create symlink: %v", err)
		}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for a replica that resolves into the source, got nil")
		}
	})

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Empty Source Path", func(c *Config) { c.Source = "" }},
		{"Empty Replica Path", func(c *Config) { c.Replica = "" }},
		{"Empty Log Path", func(c *Config) { c.LogFile = "" }},
		{"Replica Inside Source", func(c *Config) { c.Replica = filepath.Join(c.Source, "mirror") }},
		{"Source Inside Replica", func(c *Config) { c.Source = filepath.Join(c.Replica, "data") }},
		{"Same Source And Replica", func(c *Config) { c.Replica = c.Source }},
		{"Zero Interval", func(c *Config) { c.Schedule.IntervalSeconds = 0 }},
		{"Negative Interval", func(c *Config) { c.Schedule.IntervalSeconds = -5 }},
		{"Negative Retry Count", func(c *Config) { c.Sync.RetryCount = -1 }},
		{"Negative Retry Wait", func(c *Config) { c.Sync.RetryWaitSeconds = -1 }},
		{"Zero Buffer Size", func(c *Config) { c.Sync.BufferSizeKB = 0 }},
		{"Invalid File Pattern", func(c *Config) { c.Sync.ExcludeFiles = []string{"[unclosed"} }},
		{"Invalid Dir Pattern", func(c *Config) { c.Sync.ExcludeDirs = []string{"{a,b"} }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newValidConfig(t)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, but got nil")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("Empty Path Returns Defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(cfg, NewDefault()) {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("Missing File Returns Defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), ConfigFileName))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Schedule.IntervalSeconds != DefaultIntervalSeconds {
			t.Errorf("expected default interval, got %d", cfg.Schedule.IntervalSeconds)
		}
	})

	t.Run("Partial File Keeps Defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ConfigFileName)
		content := `{"source": "src", "replica": "/abs/replica", "schedule": {"intervalSeconds": 5}}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Schedule.IntervalSeconds != 5 {
			t.Errorf("expected interval 5, got %d", cfg.Schedule.IntervalSeconds)
		}
		if cfg.Sync.BufferSizeKB != 256 {
			t.Errorf("expected default buffer size to survive, got %d", cfg.Sync.BufferSizeKB)
		}
		if cfg.Source != filepath.Join(dir, "src") {
			t.Errorf("expected relative source to resolve against the config dir, got %q", cfg.Source)
		}
		if cfg.Replica != "/abs/replica" {
			t.Errorf("expected absolute replica to be unchanged, got %q", cfg.Replica)
		}
	})

	t.Run("Malformed File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		if err := os.WriteFile(path, []byte(`{"source": `), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected parse error, got nil")
		}
	})

	t.Run("Hooks", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		content := `{"hooks": {"prePass": ["mount /mnt/replica"], "postPass": ["notify-send done"]}}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(cfg.Hooks.PrePass, []string{"mount /mnt/replica"}) {
			t.Errorf("unexpected pre-pass hooks: %v", cfg.Hooks.PrePass)
		}
		if !reflect.DeepEqual(cfg.Hooks.PostPass, []string{"notify-send done"}) {
			t.Errorf("unexpected post-pass hooks: %v", cfg.Hooks.PostPass)
		}
	})

	t.Run("Unknown Field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		if err := os.WriteFile(path, []byte(`{"target": "/x"}`), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error for unknown field, got nil")
		}
	})
}

func TestGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := NewDefault()
	cfg.Source = "/data/src"
	cfg.Replica = "/data/replica"
	cfg.LogFile = "/data/sync.log"
	cfg.Runtime.DryRun = true

	if err := Generate(cfg, path, false); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("generated config is not valid JSON: %v", err)
	}
	if _, ok := decoded["Runtime"]; ok {
		t.Error("runtime settings must not be written to the config file")
	}
	sync, ok := decoded["sync"].(map[string]any)
	if !ok {
		t.Fatalf("expected sync section, got %v", decoded["sync"])
	}
	if _, ok := sync["excludeFiles"]; !ok {
		t.Error("expected empty excludeFiles to be present for discoverability")
	}

	t.Run("Refuses To Overwrite", func(t *testing.T) {
		err := Generate(cfg, path, false)
		if !errors.Is(err, ErrConfigExists) {
			t.Errorf("expected ErrConfigExists, got %v", err)
		}
	})

	t.Run("Force Overwrites", func(t *testing.T) {
		if err := Generate(cfg, path, true); err != nil {
			t.Errorf("expected forced generate to succeed, got %v", err)
		}
	})

	t.Run("Round Trip Through Load", func(t *testing.T) {
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.Source != cfg.Source || loaded.Replica != cfg.Replica || loaded.LogFile != cfg.LogFile {
			t.Errorf("paths did not survive round trip: %+v", loaded)
		}
		if loaded.Runtime.DryRun {
			t.Error("runtime settings must not be loaded from the file")
		}
	})
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()
	base.Source = "/from/file"
	base.Sync.ExcludeFiles = []string{"*.tmp"}

	flags := map[string]any{
		"source":         "/from/flag",
		"replica":        "/replica",
		"log":            "/sync.log",
		"log-level":      "debug",
		"interval":       10,
		"dry-run":        true,
		"fail-fast":      true,
		"retry-count":    0,
		"retry-wait":     3,
		"buffer-size-kb": 64,
		"exclude-files":  []string{"*.tmp", "*.bak"},
		"exclude-dirs":   []string{"node_modules"},
		"require-mount":  true,
		"config":         "/ignored.json",
	}

	merged := MergeConfigWithFlags(base, flags)

	if merged.Source != "/from/flag" || merged.Replica != "/replica" || merged.LogFile != "/sync.log" {
		t.Errorf("paths not merged: %+v", merged)
	}
	if merged.LogLevel != "debug" || merged.Schedule.IntervalSeconds != 10 {
		t.Errorf("log level or interval not merged: %+v", merged)
	}
	if !merged.Runtime.DryRun || !merged.Sync.FailFast || !merged.Sync.RequireMountedReplica {
		t.Errorf("booleans not merged: %+v", merged)
	}
	if merged.Sync.RetryCount != 0 || merged.Sync.RetryWaitSeconds != 3 || merged.Sync.BufferSizeKB != 64 {
		t.Errorf("sync numbers not merged: %+v", merged.Sync)
	}
	if want := []string{"*.tmp", "*.bak"}; !reflect.DeepEqual(merged.Sync.ExcludeFiles, want) {
		t.Errorf("expected exclude files %v, got %v", want, merged.Sync.ExcludeFiles)
	}
	if want := []string{"node_modules"}; !reflect.DeepEqual(merged.Sync.ExcludeDirs, want) {
		t.Errorf("expected exclude dirs %v, got %v", want, merged.Sync.ExcludeDirs)
	}
	if base.Source != "/from/file" {
		t.Error("merge must not modify the base config")
	}
}

func TestLogSummary(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	cfg := NewDefault()
	cfg.Source = "/src"
	cfg.Sync.ExcludeDirs = []string{".git", "node_modules"}
	cfg.LogSummary()

	output := logBuf.String()
	if !strings.Contains(output, "msg=\"Configuration loaded\"") {
		t.Errorf("expected summary message, got: %s", output)
	}
	if !strings.Contains(output, "interval=60s") {
		t.Errorf("expected interval in summary, got: %s", output)
	}
	if !strings.Contains(output, "exclude_dirs=\".git, node_modules\"") {
		t.Errorf("expected exclude dirs in summary, got: %s", output)
	}
}

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
	"github.com/paulschiretz/pgl-mirror/pkg/synclog"
)

// helper to create a file (and its parent directories) with the given content.
func createFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for test file: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// newTestConfig creates source, replica and log directories and returns a config using them.
func newTestConfig(t *testing.T) config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewDefault()
	cfg.Source = filepath.Join(base, "src")
	cfg.Replica = filepath.Join(base, "replica")
	cfg.LogFile = filepath.Join(base, "logs", "sync.log")
	cfg.Sync.RetryCount = 0
	cfg.Sync.RetryWaitSeconds = 0
	cfg.Sync.BufferSizeKB = 4
	for _, d := range []string{cfg.Source, cfg.Replica, filepath.Dir(cfg.LogFile)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}
	return cfg
}

func missingLine(name string) string {
	return synclog.Record{Name: name, Reason: synclog.Missing}.Line()
}

func TestRun_Once(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "hello")
	createFile(t, filepath.Join(cfg.Source, "sub", "b.txt"), "x")

	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := readFile(t, filepath.Join(cfg.Replica, "sub", "b.txt")); got != "x" {
		t.Errorf("expected sub/b.txt to be mirrored, got %q", got)
	}
	expected := synclog.Header + missingLine("a.txt") + missingLine("b.txt")
	if got := readFile(t, cfg.LogFile); got != expected {
		t.Errorf("expected log %q, got %q", expected, got)
	}
	if _, err := os.Stat(filepath.Join(cfg.Replica, lockfile.LockFileName)); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed after the run")
	}
}

func TestRun_SourceFileNamedLikeTheLockIsNotMirrored(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook commands use /bin/sh syntax")
	}
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	createFile(t, filepath.Join(cfg.Source, lockfile.LockFileName), "user data")
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	// The post-pass hook runs while the lock is still held.
	seen := filepath.Join(t.TempDir(), "seen")
	cfg.Hooks.PostPass = []string{"cat " + filepath.Join(cfg.Replica, lockfile.LockFileName) + " > " + seen}

	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expected := synclog.Header + missingLine("a.txt")
	if got := readFile(t, cfg.LogFile); got != expected {
		t.Errorf("expected log %q, got %q", expected, got)
	}
	if got := readFile(t, seen); !strings.Contains(got, "pgl-mirror:") {
		t.Errorf("expected the lock content to survive the pass, got %q", got)
	}
	if got := readFile(t, filepath.Join(cfg.Source, lockfile.LockFileName)); got != "user data" {
		t.Errorf("expected the source file to be untouched, got %q", got)
	}
}

func TestRun_OnceWithFailedEntries(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	createFile(t, filepath.Join(cfg.Source, "conflict", "inner.txt"), "i")
	createFile(t, filepath.Join(cfg.Replica, "conflict"), "file in the way")

	err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background())
	if !errors.Is(err, ErrPassIncomplete) {
		t.Fatalf("expected ErrPassIncomplete, got %v", err)
	}
}

func TestRun_LoopsUntilCancelled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Schedule.IntervalSeconds = 30
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- NewRunner(cfg, clock).Run(ctx) }()

	// The runner waits on the clock once the first pass is done.
	clock.BlockUntil(1)
	if got := readFile(t, filepath.Join(cfg.Replica, "a.txt")); got != "a" {
		t.Fatalf("expected a.txt after first pass, got %q", got)
	}

	// A deleted log is recreated with its header on the next pass.
	if err := os.Remove(cfg.LogFile); err != nil {
		t.Fatalf("failed to remove log: %v", err)
	}
	createFile(t, filepath.Join(cfg.Source, "b.txt"), "b")

	clock.Advance(30 * time.Second)
	clock.BlockUntil(1)

	if got := readFile(t, filepath.Join(cfg.Replica, "b.txt")); got != "b" {
		t.Errorf("expected b.txt after second pass, got %q", got)
	}
	if got := readFile(t, cfg.LogFile); got != synclog.Header+missingLine("b.txt") {
		t.Errorf("unexpected log after second pass: %q", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRun_FailedPassDoesNotStopTheLoop(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Schedule.IntervalSeconds = 10
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- NewRunner(cfg, clock).Run(ctx) }()
	clock.BlockUntil(1)

	// Without its directory the log cannot be recreated, so the next pass fails.
	logDir := filepath.Dir(cfg.LogFile)
	if err := os.RemoveAll(logDir); err != nil {
		t.Fatalf("failed to remove log dir: %v", err)
	}
	clock.Advance(10 * time.Second)
	clock.BlockUntil(1)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		t.Fatalf("failed to recreate log dir: %v", err)
	}
	createFile(t, filepath.Join(cfg.Source, "c.txt"), "c")
	clock.Advance(10 * time.Second)
	clock.BlockUntil(1)

	if got := readFile(t, filepath.Join(cfg.Replica, "c.txt")); got != "c" {
		t.Errorf("expected the loop to recover and copy c.txt, got %q", got)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_FailFastStopsOnFailedPass(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Sync.FailFast = true
	createFile(t, filepath.Join(cfg.Source, "conflict", "inner.txt"), "i")
	createFile(t, filepath.Join(cfg.Replica, "conflict"), "file in the way")

	err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background())
	if err == nil {
		t.Fatal("expected fail-fast to end the run with an error")
	}
}

func TestRun_PreflightFailure(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Replica = filepath.Join(t.TempDir(), "not-mounted")

	err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background())
	if err == nil {
		t.Fatal("expected preflight error for missing replica, got nil")
	}
	if _, statErr := os.Stat(cfg.Replica); !os.IsNotExist(statErr) {
		t.Error("the replica must never be created implicitly")
	}
	if _, statErr := os.Stat(cfg.LogFile); !os.IsNotExist(statErr) {
		t.Error("the log must not be created when preflight fails")
	}
}

func TestRun_RequireMountedReplica(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	cfg.Sync.RequireMountedReplica = true
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not a mount point") {
		t.Fatalf("expected mount point error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Replica, "a.txt")); !os.IsNotExist(statErr) {
		t.Error("nothing may be mirrored into an unmounted replica")
	}
}

func TestRun_ReplicaLockedByAnotherInstance(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	lock, err := lockfile.Acquire(context.Background(), cfg.Replica, "other")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background()); err != nil {
		t.Fatalf("expected graceful exit, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Replica, "a.txt")); !os.IsNotExist(err) {
		t.Error("expected nothing to be mirrored while another instance holds the lock")
	}
}

func TestRun_DryRunLeavesNoTrace(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	cfg.Runtime.DryRun = true
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	entries, err := os.ReadDir(cfg.Replica)
	if err != nil {
		t.Fatalf("failed to list replica: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty replica after dry run, found %d entries", len(entries))
	}
	if _, err := os.Stat(cfg.LogFile); !os.IsNotExist(err) {
		t.Error("expected no sync log after dry run")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_PassHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook commands use /bin/sh syntax")
	}
	cfg := newTestConfig(t)
	cfg.Runtime.Once = true
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")
	createFile(t, filepath.Join(cfg.Source, "b.txt"), "b")

	out := filepath.Join(t.TempDir(), "hooks.out")
	cfg.Hooks.PrePass = []string{`echo "pre $PGL_MIRROR_PASS" >> ` + out}
	cfg.Hooks.PostPass = []string{`echo "post $PGL_MIRROR_COPIED $PGL_MIRROR_FAILED" >> ` + out}

	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := readFile(t, out); got != "pre 1\npost 2 0\n" {
		t.Errorf("unexpected hook output: %q", got)
	}
}

func TestRun_FailingPreHookWithFailFast(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook commands use /bin/sh syntax")
	}
	cfg := newTestConfig(t)
	cfg.Sync.FailFast = true
	cfg.Hooks.PrePass = []string{"exit 3"}
	createFile(t, filepath.Join(cfg.Source, "a.txt"), "a")

	if err := NewRunner(cfg, clockwork.NewFakeClock()).Run(context.Background()); err == nil {
		t.Fatal("expected failing pre-pass hook to abort the run")
	}
	if _, err := os.Stat(filepath.Join(cfg.Replica, "a.txt")); !os.IsNotExist(err) {
		t.Error("expected no pass after the failing pre-pass hook")
	}
}

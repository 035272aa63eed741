//go:build !windows

package preflight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckReplicaAccessible_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission checks")
	}
	replica := filepath.Join(t.TempDir(), "replica")
	if err := os.Mkdir(replica, 0555); err != nil {
		t.Fatalf("failed to create read-only replica: %v", err)
	}
	t.Cleanup(func() { os.Chmod(replica, 0755) })

	if err := CheckReplicaAccessible(replica); err == nil {
		t.Error("expected error for read-only replica, got nil")
	}
}

func TestCheckSourceAccessible_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission checks")
	}
	src := filepath.Join(t.TempDir(), "src")
	if err := os.Mkdir(src, 0); err != nil {
		t.Fatalf("failed to create unreadable source: %v", err)
	}
	t.Cleanup(func() { os.Chmod(src, 0755) })

	if err := CheckSourceAccessible(src); err == nil {
		t.Error("expected error for unreadable source, got nil")
	}
}

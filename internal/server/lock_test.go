package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLock_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	info, err := LoadLock(dir)
	if err != nil {
		t.Fatalf("LoadLock on empty dir: %v", err)
	}
	if info != nil {
		t.Fatalf("LoadLock on empty dir = %+v, want nil", info)
	}

	if err := SaveLock(dir, LockInfo{PID: os.Getpid(), Host: "127.0.0.1", Port: 2027}); err != nil {
		t.Fatalf("SaveLock: %v", err)
	}

	st, err := os.Stat(filepath.Join(dir, lockFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0600 {
		t.Errorf("lock file mode = %o, want 600", perm)
	}

	info, err = LoadLock(dir)
	if err != nil {
		t.Fatalf("LoadLock: %v", err)
	}
	if info.PID != os.Getpid() || info.Port != 2027 {
		t.Errorf("LoadLock = %+v", info)
	}
	if info.Addr() != "127.0.0.1:2027" {
		t.Errorf("Addr() = %q", info.Addr())
	}
	if info.StartedAt.IsZero() || time.Since(info.StartedAt) > time.Minute {
		t.Errorf("StartedAt = %v, want ~now", info.StartedAt)
	}
	if !info.IsAlive() {
		t.Error("current process should be alive")
	}

	if err := RemoveLock(dir); err != nil {
		t.Fatalf("RemoveLock: %v", err)
	}
	if err := RemoveLock(dir); err != nil {
		t.Fatalf("RemoveLock twice: %v", err)
	}
}

func TestLock_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, lockFile), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLock(dir); err == nil {
		t.Error("expected error for corrupt lock file")
	}
}

func TestLockInfo_IsAliveDeadProcess(t *testing.T) {
	info := LockInfo{PID: 99999999}
	if info.IsAlive() {
		t.Error("nonexistent pid reported alive")
	}
}

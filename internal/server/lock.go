package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockFile = "server.lock"

// LockInfo describes a running server.
type LockInfo struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// Addr returns host:port of the running server.
func (l *LockInfo) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// IsAlive checks if the process is still running.
func (l *LockInfo) IsAlive() bool {
	process, err := os.FindProcess(l.PID)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}

// LoadLock reads the lock file from dir. It returns nil, nil if there is none.
func LoadLock(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", lockFile, err)
	}
	return &info, nil
}

// SaveLock writes the lock file into dir.
func SaveLock(dir string, info LockInfo) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, lockFile), data, 0600)
}

// RemoveLock deletes the lock file. A missing file is not an error.
func RemoveLock(dir string) error {
	err := os.Remove(filepath.Join(dir, lockFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/picklr-io/lambdasync/internal/logging"
)

// StaleLockAge is how old a lock file must be before it is broken.
const StaleLockAge = 10 * time.Minute

// ErrLocked is returned when another process holds the state lock.
var ErrLocked = errors.New("state is locked by another process")

// Lock acquires a file lock on the state to prevent concurrent runs.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > StaleLockAge {
		logging.Warn("breaking stale state lock", "path", lockPath, "age", time.Since(info.ModTime()).Round(time.Second))
		_ = os.Remove(lockPath)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w (lock file: %s, held by %s); remove the lock file if this is an error",
				ErrLocked, lockPath, lockHolder(lockPath))
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Unlock releases the state lock.
func (m *Manager) Unlock() error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}

func lockHolder(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			if _, err := strconv.Atoi(v); err == nil {
				return "pid " + v
			}
		}
	}
	return "unknown"
}

// Package lockfile keeps a second ingestion process from writing the same
// lore index.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned when a live process holds the lock.
var ErrLocked = errors.New("lore index is locked by another process")

// Lock is an exclusive, PID-stamped lock file next to a lore index.
type Lock struct {
	path string
	file *os.File
}

// ForIndex returns the lock guarding the index at indexPath.
func ForIndex(indexPath string) *Lock {
	return New(filepath.Clean(indexPath) + ".lock")
}

// New returns a lock at path. Nothing is created until Acquire.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Held reports whether this Lock currently holds the file.
func (l *Lock) Held() bool {
	return l.file != nil
}

// Acquire takes the lock. A lock file left by a process that is no longer
// running is replaced.
func (l *Lock) Acquire() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := l.create()
	if errors.Is(err, os.ErrExist) {
		holder, alive := l.holder()
		if alive {
			return fmt.Errorf("%w (pid %d, %s)", ErrLocked, holder, l.path)
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
		f, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	stamp := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if _, err := f.WriteString(stamp); err != nil {
		f.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	l.file = f
	return nil
}

func (l *Lock) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// holder returns the PID recorded in the lock file and whether it runs.
// Unreadable or malformed files count as stale.
func (l *Lock) holder() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, processRunning(pid)
}

// Release removes the lock file. Releasing a lock that is not held is a
// no-op.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return closeErr
}

// Close is Release, so a Lock can be deferred as an io.Closer.
func (l *Lock) Close() error {
	return l.Release()
}

// Package lock prevents two runs from writing the same state directory at
// the same time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another run is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if the lock cannot be acquired.
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = 1

	// TimeoutInfinite waits until the lock is acquired or ctx is done.
	TimeoutInfinite = -1
)

// pollInterval is how often a waiting acquirer retries.
const pollInterval = 50 * time.Millisecond

// FileLock is an exclusive lock backed by a marker file created with O_EXCL.
// The marker holds the owner's pid for diagnostics. A crashed run leaves the
// marker behind; remove it by hand.
type FileLock struct {
	fs   afero.Fs
	path string
	held bool
}

// NewFileLock creates a lock on path. The lock is not acquired until
// AcquireLock is called.
func NewFileLock(fs afero.Fs, path string) *FileLock {
	return &FileLock{fs: fs, path: path}
}

// AcquireLock attempts to acquire the lock, polling until timeoutSeconds
// elapse. Returns true if acquired, false on timeout.
func (l *FileLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if l.held {
		return true, nil
	}

	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		ok, err := l.tryCreate()
		if err != nil || ok {
			return ok, err
		}

		if timeoutSeconds >= 0 && !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *FileLock) tryCreate() (bool, error) {
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) || errors.Is(err, afero.ErrFileExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file %s: %w", l.path, err)
	}
	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = l.fs.Remove(l.path)
		return false, fmt.Errorf("failed to write lock file %s: %w", l.path, werr)
	}
	l.held = true
	return true, nil
}

// ReleaseLock releases the lock. Returns false if the lock was not held.
func (l *FileLock) ReleaseLock() (bool, error) {
	if !l.held {
		return false, nil
	}
	l.held = false
	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return true, nil
}

// IsHeld returns true if this instance currently holds the lock.
func (l *FileLock) IsHeld() bool {
	return l.held
}

// Path returns the marker file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryAcquire attempts to acquire the lock without waiting.
func (l *FileLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail acquires the lock with a short timeout and returns
// ErrLockTimeout if another run holds it.
func (l *FileLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := l.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: %s is held by another run", ErrLockTimeout, l.path)
	}
	return nil
}

// LockFileName creates a consistent marker name for a scope label such as
// "servicenow/now/table/v1". Characters outside [A-Za-z0-9_-] become
// underscores.
//
// Example: LockFileName("servicenow/now") → ".servicenow_now.lock"
func LockFileName(scope string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, scope)

	return "." + sanitized + ".lock"
}

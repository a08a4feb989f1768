package binary

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	lockSuffix = ".lock"

	// DefaultStaleLockAge is the age after which a lock is broken even if its
	// owner still appears to be running.
	DefaultStaleLockAge = 30 * time.Minute
	defaultLockPoll     = 250 * time.Millisecond
)

// ErrLockExists is returned by tryLock when another process holds the lock.
var ErrLockExists = errors.New("cache entry is locked by another process")

// entryLock serialises extraction of one cache entry across processes.
type entryLock struct {
	path string
	file *os.File
}

// tryLock creates the lock file exclusively and records the owner.
func tryLock(path string) (*entryLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrLockExists
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &entryLock{path: path, file: file}, nil
}

// release removes the lock file.
func (l *entryLock) release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	return removeIfExists(l.path)
}

// lockStale reports whether the lock at path was left behind: its owner is
// no longer running on this host, or it is older than maxAge.
func lockStale(ctx context.Context, path string, maxAge time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if time.Since(info.ModTime()) > maxAge {
		return true, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	pid := lockOwner(data)
	if pid <= 0 {
		// owner has not written its pid yet
		return false, nil
	}
	alive, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return false, nil
	}
	return !alive, nil
}

// breakLock removes the lock at path only if it still holds seen. The lock is
// first moved aside under a unique name, so a waiter racing on the same stale
// lock cannot delete a fresh lock taken by another. A lock that changed is put
// back and breakLock reports false.
func breakLock(path string, seen []byte) (bool, error) {
	aside := fmt.Sprintf("%s.stale-%s", path, uuid.NewString())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("move stale lock: %w", err)
	}

	data, err := os.ReadFile(aside)
	if err != nil {
		return false, fmt.Errorf("read stale lock: %w", err)
	}
	if !bytes.Equal(data, seen) {
		// Another waiter already replaced the stale lock. Restore it unless a
		// third process has locked in the meantime.
		if err := os.Link(aside, path); err != nil && !errors.Is(err, fs.ErrExist) {
			return false, fmt.Errorf("restore lock: %w", err)
		}
		return false, removeIfExists(aside)
	}
	return true, removeIfExists(aside)
}

// lockOwner parses the pid line of a lock file.
func lockOwner(data []byte) int32 {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "pid=")
		if !ok {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			return 0
		}
		return int32(pid)
	}
	return 0
}

// acquireLock waits until the entry lock at path can be taken. Stale locks
// are removed. The wait ends with ctx.
func (m *Manager) acquireLock(ctx context.Context, path string) (*entryLock, error) {
	waiting := false
	for {
		lock, err := tryLock(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockExists) {
			return nil, err
		}

		// Read the owner before judging it, so breakLock can tell whether the
		// lock was replaced in between.
		seen, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read lock file: %w", err)
		}
		stale, err := lockStale(ctx, path, m.staleLockAge)
		if err != nil {
			return nil, fmt.Errorf("inspect lock file: %w", err)
		}
		if stale && seen != nil {
			broken, err := breakLock(path, seen)
			if err != nil {
				return nil, err
			}
			if broken {
				m.log.WithField("lock", path).Warn("Removed stale cache lock")
			}
			continue
		}

		if !waiting {
			m.log.WithField("lock", path).Info("Waiting for another foundryup process to finish")
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for cache lock %s: %w", path, ctx.Err())
		case <-time.After(m.lockPoll):
		}
	}
}

// Package lockedfile provides an advisory inter-process mutex backed by a
// lock file.
package lockedfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by TryLock when another process holds the mutex.
var ErrLocked = errors.New("locked by another process")

// A Mutex is a mutual exclusion lock held on the file at Path.
type Mutex struct {
	Path string
}

// MutexAt returns a Mutex on the lock file at path.
func MutexAt(path string) *Mutex {
	return &Mutex{Path: path}
}

// Lock blocks until the mutex is held and returns the function that
// releases it.
func (mu *Mutex) Lock() (unlock func(), err error) {
	return mu.lock(true)
}

// TryLock acquires the mutex without waiting. It fails with ErrLocked when
// another process holds it.
func (mu *Mutex) TryLock() (unlock func(), err error) {
	return mu.lock(false)
}

func (mu *Mutex) lock(wait bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", mu.Path, err)
	}
	f, err := os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", mu.Path, err)
	}
	if err := lockFile(f, wait); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", mu.Path, err)
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}

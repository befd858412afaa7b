// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package routestate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/epoch-bridge/protocol"
)

// ErrLockHeld means another process already runs this route. It is never
// resolved by removing the other holder's lock.
var ErrLockHeld = errors.New("route lock already held")

// ErrLockLost means a lock this process held was taken away or expired.
var ErrLockLost = errors.New("route lock lost")

// Locker keeps a route to one process at a time.
type Locker interface {
	// Acquire fails with ErrLockHeld if the route is taken.
	Acquire(ctx context.Context) error
	// Refresh confirms the lock is still ours, extending it if it expires.
	Refresh(ctx context.Context) error
	// Release is a no-op if the lock is not held.
	Release(ctx context.Context) error
	// RefreshInterval is how often the holder must call Refresh to keep the
	// lock. Zero means the lock never expires on its own.
	RefreshInterval() time.Duration
}

// FileLock is a pid file created exclusively. It only excludes processes on
// the same host.
type FileLock struct {
	mu   sync.Mutex
	path string
	held bool
	pid  int
}

var _ Locker = (*FileLock)(nil)

func NewFileLock(dir string, route protocol.Route) *FileLock {
	return &FileLock{
		path: filepath.Join(dir, route.String()+".pid"),
		pid:  os.Getpid(),
	}
}

func (l *FileLock) Path() string {
	return l.path
}

func (l *FileLock) RefreshInterval() time.Duration {
	return 0
}

func (l *FileLock) Acquire(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("%w: %s is already held by this process", ErrLockHeld, l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s exists (owner pid %s)", ErrLockHeld, l.path, l.owner())
	}
	if err != nil {
		return err
	}
	_, err = f.WriteString(strconv.Itoa(l.pid))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(l.path)
		return err
	}
	l.held = true
	log.Info("Acquired route lock", "path", l.path, "pid", l.pid)
	return nil
}

func (l *FileLock) owner() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}

func (l *FileLock) Refresh(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return fmt.Errorf("%w: %s was never acquired", ErrLockLost, l.path)
	}
	if owner := l.owner(); owner != strconv.Itoa(l.pid) {
		l.held = false
		return fmt.Errorf("%w: %s now owned by %s", ErrLockLost, l.path, owner)
	}
	return nil
}

func (l *FileLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if owner := l.owner(); owner != strconv.Itoa(l.pid) {
		log.Warn("Route lock file no longer ours, leaving it", "path", l.path, "owner", owner)
		return nil
	}
	err := os.Remove(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil {
		log.Info("Released route lock", "path", l.path)
	}
	return err
}

// Package lock implements a re-entrant, cross-process lock on a repository.
//
// Shared and exclusive acquisitions are counted. The lock is held exclusively as long as
// some exclusive acquisition is outstanding, and shared while only shared acquisitions remain.
// The underlying flock(2) lock is taken on an open file description: two Lock values on the
// same path contend with each other, even within the same process.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"github.com/oneconcern/treemon/pkg/errors"
	"go.uber.org/zap"
)

// Mode of the lock
type Mode int

// Lock modes
const (
	Unlocked Mode = iota
	Shared
	Exclusive
)

// retryDelay between attempts while waiting for a contended lock
const retryDelay = 50 * time.Millisecond

var (
	// ErrWouldBlock indicates a lock held by another handle beyond the timeout
	ErrWouldBlock = errors.ErrWouldBlock.Extend("repository lock is held")

	// ErrNeverLocked indicates a pop on a lock which was never pushed
	ErrNeverLocked = errors.ErrInvalidState.Extend("Cannot pop repo never locked repo lock")

	// ErrAlreadyUnlocked indicates a pop on a released lock
	ErrAlreadyUnlocked = errors.ErrInvalidState.Extend("Cannot pop already unlocked repo lock")

	// ErrNoExclusive indicates an exclusive pop without any outstanding exclusive push
	ErrNoExclusive = errors.ErrInvalidState.Extend("Repo exclusive lock pop requested, but none have been taken")

	// ErrNoShared indicates a shared pop without any outstanding shared push
	ErrNoShared = errors.ErrInvalidState.Extend("Repo shared lock pop requested, but none have been taken")
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unlocked"
	}
}

// Lock is a re-entrant repository lock
type Lock struct {
	mx         sync.Mutex
	path       string
	timeout    time.Duration
	flock      *flock.Flock
	shared     int
	exclusive  int
	everLocked bool
	l          *zap.Logger
}

// Option for a lock
type Option func(*Lock)

// Timeout to wait for a contended lock. 0 fails immediately, a negative value waits forever.
func Timeout(timeout time.Duration) Option {
	return func(l *Lock) {
		l.timeout = timeout
	}
}

// Logger for this lock
func Logger(zl *zap.Logger) Option {
	return func(l *Lock) {
		if zl != nil {
			l.l = zl
		}
	}
}

// New lock on a file, created if needed
func New(path string, opts ...Option) *Lock {
	l := &Lock{
		path:    path,
		timeout: 30 * time.Second,
		flock:   flock.New(path),
		l:       dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(l)
	}
	return l
}

// State returns the mode currently held
func (l *Lock) State() Mode {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.state()
}

func (l *Lock) state() Mode {
	switch {
	case l.exclusive > 0:
		return Exclusive
	case l.shared > 0:
		return Shared
	default:
		return Unlocked
	}
}

// Counts of outstanding shared and exclusive pushes
func (l *Lock) Counts() (int, int) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.shared, l.exclusive
}

// Push acquires the lock in some mode.
//
// Pushing shared while holding exclusive does not downgrade. Pushing exclusive while holding shared upgrades.
func (l *Lock) Push(ctx context.Context, mode Mode) error {
	l.mx.Lock()
	defer l.mx.Unlock()

	switch mode {
	case Shared:
		if l.state() == Unlocked {
			if err := l.acquire(ctx, Shared); err != nil {
				return err
			}
		}
		l.shared++
	case Exclusive:
		if l.exclusive == 0 {
			if err := l.acquire(ctx, Exclusive); err != nil {
				return err
			}
		}
		l.exclusive++
	default:
		return errors.ErrInvalidArgument.WrapMessage("invalid lock mode %d", mode)
	}
	l.everLocked = true
	l.l.Debug("lock pushed", zap.String("path", l.path), zap.Stringer("mode", mode),
		zap.Int("shared", l.shared), zap.Int("exclusive", l.exclusive))
	return nil
}

// Pop releases one acquisition in some mode.
//
// When the last exclusive acquisition is released while shared ones remain, the lock is downgraded.
func (l *Lock) Pop(mode Mode) error {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.state() == Unlocked {
		if !l.everLocked {
			return ErrNeverLocked
		}
		return ErrAlreadyUnlocked
	}

	switch mode {
	case Shared:
		if l.shared == 0 {
			return ErrNoShared
		}
		l.shared--
	case Exclusive:
		if l.exclusive == 0 {
			return ErrNoExclusive
		}
		l.exclusive--
		if l.exclusive == 0 && l.shared > 0 {
			if err := l.downgrade(); err != nil {
				return err
			}
		}
	default:
		return errors.ErrInvalidArgument.WrapMessage("invalid lock mode %d", mode)
	}

	if l.state() == Unlocked {
		if err := l.flock.Unlock(); err != nil {
			return errors.ErrIO.Wrap(err)
		}
	}
	l.l.Debug("lock popped", zap.String("path", l.path), zap.Stringer("mode", mode),
		zap.Int("shared", l.shared), zap.Int("exclusive", l.exclusive))
	return nil
}

func (l *Lock) acquire(ctx context.Context, mode Mode) error {
	try := l.flock.TryRLock
	tryContext := l.flock.TryRLockContext
	block := l.flock.RLock
	if mode == Exclusive {
		try, tryContext, block = l.flock.TryLock, l.flock.TryLockContext, l.flock.Lock
	}

	var (
		locked bool
		err    error
	)
	switch {
	case l.timeout == 0:
		locked, err = try()
	case l.timeout < 0:
		err = block()
		locked = err == nil
	default:
		waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
		locked, err = tryContext(waitCtx, retryDelay)
		cancel()
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = nil
		}
	}
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if !locked {
		return ErrWouldBlock.WrapMessage("locking %s %s timed out after %v", l.path, mode, l.timeout)
	}
	return nil
}

// downgrade from exclusive to shared.
//
// Like any flock(2) conversion, this is not atomic: another handle may take the lock in between,
// in which case all acquisitions are lost.
func (l *Lock) downgrade() error {
	if err := l.flock.Unlock(); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	if err := l.acquire(context.Background(), Shared); err != nil {
		l.l.Error("lost repository lock while downgrading", zap.String("path", l.path), zap.Error(err))
		l.shared = 0
		return err
	}
	return nil
}

// Close releases the lock, whatever the outstanding acquisitions
func (l *Lock) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.shared, l.exclusive = 0, 0
	if err := l.flock.Close(); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return nil
}

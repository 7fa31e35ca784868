package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupLocks(t testing.TB, timeout time.Duration) (*Lock, *Lock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".lock")
	l1 := New(path, Timeout(timeout), Logger(zaptest.NewLogger(t)))
	l2 := New(path, Timeout(timeout), Logger(zaptest.NewLogger(t)))
	t.Cleanup(func() {
		_ = l1.Close()
		_ = l2.Close()
	})
	return l1, l2
}

func TestPopErrors(t *testing.T) {
	l, _ := setupLocks(t, 0)

	err := l.Pop(Shared)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNeverLocked))
	assert.Equal(t, "Cannot pop repo never locked repo lock", err.Error())

	require.NoError(t, l.Push(context.Background(), Shared))
	err = l.Pop(Exclusive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoExclusive))
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	require.NoError(t, l.Pop(Shared))
	err = l.Pop(Shared)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyUnlocked))

	require.NoError(t, l.Push(context.Background(), Exclusive))
	assert.True(t, errors.Is(l.Pop(Shared), ErrNoShared))
	require.NoError(t, l.Pop(Exclusive))
}

func TestRecursive(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLocks(t, 0)

	for _, mode := range []Mode{Shared, Exclusive} {
		for i := 0; i < 3; i++ {
			require.NoError(t, l.Push(ctx, mode))
			assert.Equal(t, mode, l.State())
		}
		for i := 0; i < 3; i++ {
			assert.Equal(t, mode, l.State())
			require.NoError(t, l.Pop(mode))
		}
		assert.Equal(t, Unlocked, l.State())
	}
}

func TestUpgradeDowngrade(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLocks(t, 0)

	require.NoError(t, l.Push(ctx, Shared))
	assert.Equal(t, Shared, l.State())

	// upgrade
	require.NoError(t, l.Push(ctx, Exclusive))
	assert.Equal(t, Exclusive, l.State())

	// no downgrade while exclusive is held
	require.NoError(t, l.Push(ctx, Shared))
	assert.Equal(t, Exclusive, l.State())
	shared, exclusive := l.Counts()
	assert.Equal(t, 2, shared)
	assert.Equal(t, 1, exclusive)

	// downgrade
	require.NoError(t, l.Pop(Exclusive))
	assert.Equal(t, Shared, l.State())

	require.NoError(t, l.Pop(Shared))
	assert.Equal(t, Shared, l.State())
	require.NoError(t, l.Pop(Shared))
	assert.Equal(t, Unlocked, l.State())
}

func TestContention(t *testing.T) {
	ctx := context.Background()
	l1, l2 := setupLocks(t, 0)

	// shared locks coexist
	require.NoError(t, l1.Push(ctx, Shared))
	require.NoError(t, l2.Push(ctx, Shared))

	// no upgrade while another handle holds a shared lock
	err := l1.Push(ctx, Exclusive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWouldBlock))
	assert.Equal(t, Shared, l1.State())

	require.NoError(t, l2.Pop(Shared))
	require.NoError(t, l1.Push(ctx, Exclusive))

	// exclusive excludes everyone else
	assert.True(t, errors.Is(l2.Push(ctx, Shared), ErrWouldBlock))
	assert.True(t, errors.Is(l2.Push(ctx, Exclusive), ErrWouldBlock))

	// after the downgrade, other shared locks may be taken
	require.NoError(t, l1.Pop(Exclusive))
	require.NoError(t, l2.Push(ctx, Shared))
	assert.True(t, errors.Is(l2.Push(ctx, Exclusive), ErrWouldBlock))

	require.NoError(t, l1.Pop(Shared))
	require.NoError(t, l2.Push(ctx, Exclusive))
	require.NoError(t, l2.Pop(Exclusive))
	require.NoError(t, l2.Pop(Shared))
}

func TestWaitForRelease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".lock")
	holder := New(path, Timeout(0), Logger(zaptest.NewLogger(t)))
	waiter := New(path, Timeout(5*time.Second), Logger(zaptest.NewLogger(t)))
	defer func() {
		_ = holder.Close()
		_ = waiter.Close()
	}()

	require.NoError(t, holder.Push(ctx, Exclusive))
	released := make(chan struct{})
	go func() {
		defer close(released)
		time.Sleep(200 * time.Millisecond)
		_ = holder.Pop(Exclusive)
	}()

	require.NoError(t, waiter.Push(ctx, Exclusive))
	<-released
	assert.Equal(t, Unlocked, holder.State())
	require.NoError(t, waiter.Pop(Exclusive))

	short := New(path, Timeout(100*time.Millisecond), Logger(zaptest.NewLogger(t)))
	defer func() {
		_ = short.Close()
	}()
	require.NoError(t, holder.Push(ctx, Shared))
	start := time.Now()
	err := short.Push(ctx, Exclusive)
	assert.True(t, errors.Is(err, ErrWouldBlock))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	require.NoError(t, holder.Pop(Shared))
}

func TestInvalidMode(t *testing.T) {
	l, _ := setupLocks(t, 0)
	assert.True(t, errors.Is(l.Push(context.Background(), Unlocked), errors.ErrInvalidArgument))
	require.NoError(t, l.Push(context.Background(), Shared))
	assert.True(t, errors.Is(l.Pop(Unlocked), errors.ErrInvalidArgument))
}

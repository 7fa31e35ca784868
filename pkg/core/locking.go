package core

import (
	"context"

	"github.com/oneconcern/treemon/pkg/lock"
	"go.uber.org/zap"
)

// LockPush acquires the repository lock in some mode. Acquisitions are counted.
func (r *Repo) LockPush(ctx context.Context, mode lock.Mode) error {
	return r.lock.Push(ctx, mode)
}

// LockPop releases an acquisition of the repository lock
func (r *Repo) LockPop(mode lock.Mode) error {
	return r.lock.Pop(mode)
}

// LockState is the current mode of the repository lock
func (r *Repo) LockState() lock.Mode {
	return r.lock.State()
}

// AutoLock acquires the repository lock and returns a function to release it
func (r *Repo) AutoLock(ctx context.Context, mode lock.Mode) (func(), error) {
	if err := r.lock.Push(ctx, mode); err != nil {
		return nil, err
	}
	return func() {
		if err := r.lock.Pop(mode); err != nil {
			r.l.Warn("releasing repository lock", zap.Stringer("mode", mode), zap.Error(err))
		}
	}, nil
}

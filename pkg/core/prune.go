package core

import (
	"context"

	"github.com/docker/go-units"
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"go.uber.org/zap"
)

type (
	// PruneOption modifies the behavior of Prune
	PruneOption func(*pruneOptions)

	pruneOptions struct {
		refsOnly   bool
		dryRun     bool
		depth      int
		extraRoots []cafs.Key
	}
)

// WithPruneRefsOnly keeps only objects reachable from refs and extra roots.
// Otherwise, every stored commit is kept with its content.
func WithPruneRefsOnly(enabled bool) PruneOption {
	return func(o *pruneOptions) {
		o.refsOnly = enabled
	}
}

// WithPruneDryRun reports what would be deleted, without deleting anything
func WithPruneDryRun(enabled bool) PruneOption {
	return func(o *pruneOptions) {
		o.dryRun = enabled
	}
}

// WithPruneDepth limits the history kept from each ref. A negative depth keeps the whole history.
func WithPruneDepth(depth int) PruneOption {
	return func(o *pruneOptions) {
		o.depth = depth
	}
}

// WithPruneExtraRoots keeps the history of commits which are not pointed to by any ref, such as deployments
func WithPruneExtraRoots(roots ...cafs.Key) PruneOption {
	return func(o *pruneOptions) {
		o.extraRoots = append(o.extraRoots, roots...)
	}
}

func defaultPruneOptions(opts []PruneOption) *pruneOptions {
	o := &pruneOptions{depth: -1}
	for _, apply := range opts {
		apply(o)
	}
	return o
}

// PruneStats summarizes a prune
type PruneStats struct {
	ObjectsTotal  int
	ObjectsPruned int
	BytesFreed    int64
}

// Prune deletes unreachable objects. The repository lock is held in exclusive mode.
func (r *Repo) Prune(ctx context.Context, opts ...PruneOption) (PruneStats, error) {
	options := defaultPruneOptions(opts)
	if r.Transaction() != nil {
		return PruneStats{}, status.ErrTransactionInProgress.WrapMessage("can't prune during a transaction")
	}
	release, err := r.AutoLock(ctx, lock.Exclusive)
	if err != nil {
		return PruneStats{}, err
	}
	defer release()

	if !options.dryRun {
		if _, err = r.objects.CleanupStaging(ctx); err != nil {
			return PruneStats{}, err
		}
	}

	objects, err := r.objects.List(ctx)
	if err != nil {
		return PruneStats{}, err
	}
	reachable, err := r.reachable(ctx, objects, options)
	if err != nil {
		return PruneStats{}, err
	}

	stats := PruneStats{ObjectsTotal: len(objects)}
	for _, ref := range objects {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if reachable.Has(ref.Key, ref.Type) {
			continue
		}
		size, err := r.objects.Size(ctx, ref.Key, ref.Type)
		if err != nil {
			return stats, err
		}
		if !options.dryRun {
			r.l.Debug("pruning object", zap.Stringer("object", ref))
			if err := r.objects.Delete(ctx, ref.Key, ref.Type); err != nil {
				return stats, err
			}
		}
		stats.ObjectsPruned++
		stats.BytesFreed += size
	}
	r.l.Info("pruned repository",
		zap.Bool("dry_run", options.dryRun),
		zap.Int("objects", stats.ObjectsTotal),
		zap.Int("pruned", stats.ObjectsPruned),
		zap.String("freed", units.BytesSize(float64(stats.BytesFreed))),
	)
	return stats, nil
}

func (r *Repo) reachable(ctx context.Context, objects []cafs.ObjectRef, options *pruneOptions) (Reachable, error) {
	t := &traverser{repo: r, seen: make(Reachable)}

	refs, err := r.ListRefs(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if err := t.commit(ctx, ref.Checksum, options.depth); err != nil {
			return nil, err
		}
	}
	for _, root := range options.extraRoots {
		if err := t.commit(ctx, root, options.depth); err != nil {
			return nil, err
		}
	}
	if options.refsOnly {
		return t.seen, nil
	}
	for _, ref := range objects {
		if ref.Type != model.ObjectCommit {
			continue
		}
		if err := t.commit(ctx, ref.Key, 0); err != nil {
			return nil, err
		}
	}
	return t.seen, nil
}

package core

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FsckReport lists the problems found by Fsck
type FsckReport struct {
	Checked   int
	Corrupted []cafs.ObjectRef
	Missing   []cafs.ObjectRef
}

// FsckOption modifies the behavior of Fsck
type FsckOption func(*fsckOptions)

type fsckOptions struct {
	parallel int
}

// WithFsckParallel sets the number of objects verified concurrently. It defaults to #cpus.
func WithFsckParallel(parallel int) FsckOption {
	return func(o *fsckOptions) {
		if parallel > 0 {
			o.parallel = parallel
		}
	}
}

// Fsck re-hashes every stored object, then checks that every stored commit has all of its content.
//
// The returned error has the Corruption kind when some object does not match its checksum,
// or the NotFound kind when some referenced object is missing.
func (r *Repo) Fsck(ctx context.Context, opts ...FsckOption) (FsckReport, error) {
	options := &fsckOptions{parallel: runtime.NumCPU()}
	for _, apply := range opts {
		apply(options)
	}
	objects, err := r.objects.List(ctx)
	if err != nil {
		return FsckReport{}, err
	}

	var (
		report FsckReport
		mx     sync.Mutex
	)
	report.Checked = len(objects)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(options.parallel)
	for _, toPin := range objects {
		ref := toPin
		g.Go(func() error {
			err := r.objects.Verify(gctx, ref.Key, ref.Type)
			switch {
			case err == nil:
				return nil
			case errors.IsIntegrity(err):
				r.l.Warn("corrupted object", zap.Stringer("object", ref), zap.Error(err))
				mx.Lock()
				report.Corrupted = append(report.Corrupted, ref)
				mx.Unlock()
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sortRefs(report.Corrupted)

	corrupted := make(Reachable, len(report.Corrupted))
	for _, ref := range report.Corrupted {
		corrupted.add(ref.Key, ref.Type)
	}
	t := &traverser{repo: r, seen: corrupted, tolerant: true}
	for _, ref := range objects {
		if ref.Type != model.ObjectCommit || corrupted.Has(ref.Key, ref.Type) {
			continue
		}
		if err := t.commit(ctx, ref.Key, 0); err != nil {
			if errors.IsIntegrity(err) {
				continue
			}
			return report, err
		}
	}
	report.Missing = t.missing
	sortRefs(report.Missing)

	switch {
	case len(report.Corrupted) > 0:
		return report, cafs.ErrCorruptedObject.WrapMessage("%d corrupted objects, first is %v", len(report.Corrupted), report.Corrupted[0])
	case len(report.Missing) > 0:
		return report, status.ErrMissingObject.WrapMessage("%d missing objects, first is %v", len(report.Missing), report.Missing[0])
	}
	r.l.Info("fsck complete", zap.Int("objects", report.Checked))
	return report, nil
}

func sortRefs(refs []cafs.ObjectRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
}

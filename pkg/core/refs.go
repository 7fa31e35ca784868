package core

import (
	"bytes"
	"context"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/storage"
	"go.uber.org/zap"
)

const refsDir = "refs"

// RefEntry is a ref and the commit it points to
type RefEntry struct {
	Refspec  model.Refspec
	Checksum cafs.Key
}

func refContent(key cafs.Key) []byte {
	return []byte(key.String() + "\n")
}

func (r *Repo) readRef(ctx context.Context, spec model.Refspec) (cafs.Key, error) {
	data, err := storage.ReadAll(ctx, r.store, model.RefPath(spec.Remote, spec.Ref))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return cafs.Key{}, status.ErrRefNotFound.WrapMessage("%v", spec)
		}
		return cafs.Key{}, err
	}
	key, err := cafs.KeyFromString(strings.TrimSpace(string(data)))
	if err != nil {
		return cafs.Key{}, errors.ErrCorruption.Wrap(err)
	}
	return key, nil
}

// ResolveRev returns the commit designated by a revision.
//
// A revision is either a checksum or a refspec ("ref" or "remote:ref"), possibly followed
// by one or more "^" to designate parents. When allowMissing is set, a missing ref resolves
// to the zero key without error.
func (r *Repo) ResolveRev(ctx context.Context, rev string, allowMissing bool) (cafs.Key, error) {
	base := strings.TrimRight(rev, "^")
	parents := len(rev) - len(base)

	var (
		key cafs.Key
		err error
	)
	if model.ValidateChecksum(base) == nil {
		key, err = cafs.KeyFromString(base)
	} else {
		key, err = r.resolveRef(ctx, base)
	}
	if err != nil {
		if allowMissing && errors.Is(err, status.ErrRefNotFound) {
			return cafs.Key{}, nil
		}
		return cafs.Key{}, err
	}

	for i := 0; i < parents; i++ {
		commit, err := r.objects.LoadCommit(ctx, key)
		if err != nil {
			return cafs.Key{}, err
		}
		if commit.Parent == "" {
			return cafs.Key{}, status.ErrNoParent.WrapMessage("%s", key)
		}
		if key, err = cafs.KeyFromString(commit.Parent); err != nil {
			return cafs.Key{}, errors.ErrCorruption.Wrap(err)
		}
	}
	return key, nil
}

func (r *Repo) resolveRef(ctx context.Context, rev string) (cafs.Key, error) {
	spec, err := model.ParseRefspec(rev)
	if err != nil {
		return cafs.Key{}, status.ErrInvalidRev.Wrap(err)
	}
	key, err := r.readRef(ctx, spec)
	if err == nil || spec.Remote != "" || !errors.Is(err, status.ErrRefNotFound) {
		return key, err
	}
	// "remote/ref" is accepted for "remote:ref"
	if i := strings.IndexByte(spec.Ref, '/'); i > 0 {
		remoteKey, erk := r.readRef(ctx, model.Refspec{Remote: spec.Ref[:i], Ref: spec.Ref[i+1:]})
		if erk == nil {
			return remoteKey, nil
		}
	}
	return cafs.Key{}, err
}

func (r *Repo) refsTree(ctx context.Context) (*iradix.Tree, error) {
	keys, err := r.store.Keys(ctx, refsDir+"/")
	if err != nil {
		return nil, err
	}
	txn := iradix.New().Txn()
	for _, k := range keys {
		spec, ok := model.RefFromPath(k)
		if !ok {
			continue
		}
		txn.Insert([]byte(spec.String()), spec)
	}
	return txn.Commit(), nil
}

// ListRefs lists the refs whose refspec starts with prefix, sorted by refspec.
//
// Local refs are listed as "ref" and remote refs as "remote:ref".
func (r *Repo) ListRefs(ctx context.Context, prefix string) ([]RefEntry, error) {
	tree, err := r.refsTree(ctx)
	if err != nil {
		return nil, err
	}
	var (
		entries []RefEntry
		walkErr error
	)
	tree.Root().WalkPrefix([]byte(prefix), func(_ []byte, v interface{}) bool {
		spec := v.(model.Refspec)
		key, err := r.readRef(ctx, spec)
		if err != nil {
			if errors.Is(err, status.ErrRefNotFound) {
				// deleted while listing
				return false
			}
			walkErr = err
			return true
		}
		entries = append(entries, RefEntry{Refspec: spec, Checksum: key})
		return false
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return entries, nil
}

// SetRefImmediate points a ref to a commit, or deletes it when key is nil, outside of any transaction
func (r *Repo) SetRefImmediate(ctx context.Context, remote, ref string, key *cafs.Key) error {
	spec, err := validateRef(remote, ref)
	if err != nil {
		return err
	}
	release, err := r.AutoLock(ctx, lock.Exclusive)
	if err != nil {
		return err
	}
	defer release()

	pth := model.RefPath(spec.Remote, spec.Ref)
	if key == nil {
		r.l.Debug("deleting ref", zap.Stringer("ref", spec))
		return r.store.Delete(ctx, pth)
	}
	r.l.Debug("setting ref", zap.Stringer("ref", spec), zap.Stringer("commit", key))
	return r.store.Put(ctx, pth, bytes.NewReader(refContent(*key)), storage.OverWrite)
}

func validateRef(remote, ref string) (model.Refspec, error) {
	if remote != "" {
		if err := model.ValidateRemoteName(remote); err != nil {
			return model.Refspec{}, err
		}
	}
	if err := model.ValidateRefName(ref); err != nil {
		return model.Refspec{}, err
	}
	return model.Refspec{Remote: remote, Ref: ref}, nil
}

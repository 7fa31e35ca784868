package core

import (
	"context"
	"sort"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/config"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/mtree"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// ObjectSink receives pulled objects. It is implemented by Transaction.
type ObjectSink interface {
	mtree.ObjectWriter
	WriteMetadataBytes(context.Context, model.ObjectType, []byte, *cafs.Key) (cafs.WriteResult, error)
	HasObject(context.Context, cafs.Key, model.ObjectType) (bool, error)
}

// Puller fetches the commits of some refs from a remote, with the objects they need,
// and returns the commit fetched for each ref.
type Puller interface {
	Pull(ctx context.Context, remote *config.Remote, refs []string, sink ObjectSink) (map[string]cafs.Key, error)
}

// SignatureVerifier checks the signature of a commit pulled from a remote
type SignatureVerifier interface {
	VerifyCommit(ctx context.Context, remote string, commit cafs.Key, data []byte) error
}

// Pull fetches refs from a remote and updates the matching remote refs ("remote:ref") in a transaction.
//
// When refs is empty, the branches listed by the remote are pulled. When the remote requires it,
// every pulled commit is checked with verifier before any ref is updated.
func (r *Repo) Pull(ctx context.Context, remoteName string, refs []string, puller Puller, verifier SignatureVerifier) (map[string]cafs.Key, error) {
	remote, err := r.config.Remote(remoteName)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		refs = remote.Branches
	}
	if len(refs) == 0 {
		return nil, errors.ErrInvalidArgument.WrapMessage("no ref to pull from remote %q", remoteName)
	}
	for _, ref := range refs {
		if err := model.ValidateRefName(ref); err != nil {
			return nil, err
		}
		if len(remote.Branches) > 0 && !contains(remote.Branches, ref) {
			return nil, status.ErrBranchNotAllowed.WrapMessage("%s:%s", remoteName, ref)
		}
	}
	if remote.GPGVerify && verifier == nil {
		return nil, status.ErrSignature.WrapMessage("remote %q requires signed commits, but no verifier is available", remoteName)
	}

	tx, err := r.PrepareTransaction(ctx)
	if err != nil {
		return nil, err
	}
	fetched, err := r.pull(ctx, tx, remote, refs, puller, verifier)
	if err != nil {
		return nil, errs.Combine(err, tx.Abort())
	}
	if _, err = tx.Commit(ctx); err != nil {
		return nil, errs.Combine(err, tx.Abort())
	}
	return fetched, nil
}

func (r *Repo) pull(ctx context.Context, tx *Transaction, remote *config.Remote, refs []string, puller Puller, verifier SignatureVerifier) (map[string]cafs.Key, error) {
	fetched, err := puller.Pull(ctx, remote, refs, tx)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		key, ok := fetched[ref]
		if !ok {
			return nil, status.ErrRefNotFound.WrapMessage("%s:%s", remote.Name, ref)
		}
		data, err := r.objects.LoadMetadataBytes(ctx, key, model.ObjectCommit)
		if err != nil {
			return nil, err
		}
		if remote.GPGVerify {
			if err := verifier.VerifyCommit(ctx, remote.Name, key, data); err != nil {
				return nil, status.ErrSignature.Wrap(err)
			}
		}
		if err := tx.SetRef(remote.Name, ref, &key); err != nil {
			return nil, err
		}
		r.l.Info("pulled", zap.String("remote", remote.Name), zap.String("ref", ref), zap.Stringer("commit", key))
	}
	return fetched, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LocalPuller pulls from another repository on the same host
type LocalPuller struct {
	Source *Repo

	// Depth of history to copy: 0 for the pulled commits only, negative for the whole history
	Depth int
}

// Pull copies the commits pointed to by the local refs of the source repository, with their content
func (p *LocalPuller) Pull(ctx context.Context, _ *config.Remote, refs []string, sink ObjectSink) (map[string]cafs.Key, error) {
	fetched := make(map[string]cafs.Key, len(refs))
	for _, ref := range refs {
		key, err := p.Source.ResolveRev(ctx, ref, false)
		if err != nil {
			return nil, err
		}
		reachable, err := p.Source.TraverseCommit(ctx, key, p.Depth)
		if err != nil {
			return nil, err
		}
		if err := p.copyObjects(ctx, reachable, sink); err != nil {
			return nil, err
		}
		fetched[ref] = key
	}
	return fetched, nil
}

func (p *LocalPuller) copyObjects(ctx context.Context, reachable Reachable, sink ObjectSink) error {
	// commits come last, so a stored commit always has its content
	refs := make([]cafs.ObjectRef, 0, len(reachable))
	for ref := range reachable {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].Key.String() < refs[j].Key.String()
	})

	for _, ref := range refs {
		has, err := sink.HasObject(ctx, ref.Key, ref.Type)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		key := ref.Key
		if ref.Type.IsMetadata() {
			data, err := p.Source.objects.LoadMetadataBytes(ctx, key, ref.Type)
			if err != nil {
				return err
			}
			if _, err = sink.WriteMetadataBytes(ctx, ref.Type, data, &key); err != nil {
				return err
			}
			continue
		}
		if err := p.copyFile(ctx, key, sink); err != nil {
			return err
		}
	}
	return nil
}

func (p *LocalPuller) copyFile(ctx context.Context, key cafs.Key, sink ObjectSink) (err error) {
	header, content, err := p.Source.objects.LoadFile(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		err = errs.Combine(err, content.Close())
	}()
	_, err = sink.WriteFile(ctx, header, content, &key)
	return err
}

package core

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/config"
	"github.com/oneconcern/treemon/pkg/core/status"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/lock"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/mtree"
	"github.com/oneconcern/treemon/pkg/storage"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

type txState uint8

const (
	txActive txState = iota
	txCommitted
	txAborted
)

// TransactionStats summarizes the objects written by a transaction
type TransactionStats struct {
	MetadataObjectsTotal   int
	MetadataObjectsWritten int
	ContentObjectsTotal    int
	ContentObjectsWritten  int
	ContentBytesWritten    int64
	RefsUpdated            int
}

// Root of a tree written to the store
type Root struct {
	Tree cafs.Key
	Meta cafs.Key
}

// Transaction groups object writes and ref updates.
//
// Objects are written to the store as they come. Ref updates are staged and applied
// together by Commit.
type Transaction struct {
	repo *Repo
	id   ksuid.KSUID
	l    *zap.Logger

	mx            sync.Mutex
	state         txState
	refs          map[model.Refspec]*cafs.Key
	config        *config.Config
	generateSizes bool
	sizes         []cafs.SizeEntry
	stats         TransactionStats
	minFreeSpace  int64

	// beforeRefUpdate is called before each staged ref update is applied
	beforeRefUpdate func(model.Refspec) error
}

// PrepareTransaction starts a transaction. Only one transaction may be open on a repository handle.
//
// The repository lock is held in shared mode until the transaction is committed or aborted.
func (r *Repo) PrepareTransaction(ctx context.Context) (*Transaction, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.txn != nil {
		return nil, status.ErrTransactionInProgress.WrapMessage("%v", r.txn.id)
	}
	minFree, err := r.config.MinFreeSpace()
	if err != nil {
		return nil, err
	}
	if err = r.lock.Push(ctx, lock.Shared); err != nil {
		return nil, err
	}
	tx := &Transaction{
		repo:         r,
		id:           ksuid.New(),
		refs:         make(map[model.Refspec]*cafs.Key),
		minFreeSpace: minFree,
	}
	tx.l = r.l.With(zap.Stringer("transaction", tx.id))
	if err = tx.checkFreeSpace(); err != nil {
		return nil, errs.Combine(err, r.lock.Pop(lock.Shared))
	}
	r.txn = tx
	tx.l.Debug("transaction prepared")
	return tx, nil
}

// Transaction currently open, if any
func (r *Repo) Transaction() *Transaction {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.txn
}

// ID of the transaction
func (tx *Transaction) ID() string {
	return tx.id.String()
}

func (tx *Transaction) checkActive() error {
	if tx.state != txActive {
		return status.ErrTransactionDone.WrapMessage("%v", tx.id)
	}
	return nil
}

func (tx *Transaction) checkFreeSpace() error {
	if tx.minFreeSpace <= 0 {
		return nil
	}
	free, err := freeSpace(tx.repo.path)
	if err != nil {
		return err
	}
	if free >= 0 && free < tx.minFreeSpace {
		return status.ErrNotEnoughSpace.WrapMessage("%s available, %s required by %s",
			units.BytesSize(float64(free)), units.BytesSize(float64(tx.minFreeSpace)), config.KeyMinFreeSpaceSize)
	}
	return nil
}

// GenerateSizes enables the size table of the objects written by this transaction in the next commit
func (tx *Transaction) GenerateSizes(enabled bool) {
	tx.mx.Lock()
	defer tx.mx.Unlock()
	tx.generateSizes = enabled
}

func (tx *Transaction) record(res cafs.WriteResult) {
	tx.mx.Lock()
	defer tx.mx.Unlock()
	if res.Type == model.ObjectFile {
		tx.stats.ContentObjectsTotal++
		if !res.Found {
			tx.stats.ContentObjectsWritten++
			tx.stats.ContentBytesWritten += res.CompressedSize
			if tx.generateSizes {
				tx.sizes = append(tx.sizes, res.SizeEntry())
			}
		}
		return
	}
	tx.stats.MetadataObjectsTotal++
	if !res.Found {
		tx.stats.MetadataObjectsWritten++
	}
}

func (tx *Transaction) beforeWrite() error {
	tx.mx.Lock()
	err := tx.checkActive()
	tx.mx.Unlock()
	if err != nil {
		return err
	}
	return tx.checkFreeSpace()
}

// WriteFile stores a file object. When expected is not nil, the content must match it.
func (tx *Transaction) WriteFile(ctx context.Context, header model.FileHeader, payload io.Reader, expected *cafs.Key) (cafs.WriteResult, error) {
	if err := tx.beforeWrite(); err != nil {
		return cafs.WriteResult{}, err
	}
	res, err := tx.repo.objects.WriteFile(ctx, header, payload, expected)
	if err != nil {
		return res, err
	}
	tx.record(res)
	return res, nil
}

// WriteMetadata stores a dirtree, dirmeta or commit
func (tx *Transaction) WriteMetadata(ctx context.Context, o model.MetadataObject, expected *cafs.Key) (cafs.WriteResult, error) {
	if err := tx.beforeWrite(); err != nil {
		return cafs.WriteResult{}, err
	}
	res, err := tx.repo.objects.WriteMetadata(ctx, o, expected)
	if err != nil {
		return res, err
	}
	tx.record(res)
	return res, nil
}

// WriteMetadataBytes stores an encoded metadata object
func (tx *Transaction) WriteMetadataBytes(ctx context.Context, t model.ObjectType, data []byte, expected *cafs.Key) (cafs.WriteResult, error) {
	if err := tx.beforeWrite(); err != nil {
		return cafs.WriteResult{}, err
	}
	res, err := tx.repo.objects.WriteMetadataBytes(ctx, t, data, expected)
	if err != nil {
		return res, err
	}
	tx.record(res)
	return res, nil
}

// HasObject tells if an object is already stored
func (tx *Transaction) HasObject(ctx context.Context, key cafs.Key, t model.ObjectType) (bool, error) {
	return tx.repo.objects.Has(ctx, key, t)
}

// StreamingFile is a file object written in chunks within a transaction
type StreamingFile struct {
	tx *Transaction
	w  *cafs.FileWriter
}

// Write a chunk
func (f *StreamingFile) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

// Abort the write
func (f *StreamingFile) Abort() error {
	return f.w.Abort()
}

// Finish the write. When expected is not nil, the content must match it.
func (f *StreamingFile) Finish(expected *cafs.Key) (cafs.WriteResult, error) {
	if err := f.tx.beforeWrite(); err != nil {
		return cafs.WriteResult{}, errs.Combine(err, f.w.Abort())
	}
	res, err := f.w.Finish(expected)
	if err != nil {
		return res, err
	}
	f.tx.record(res)
	return res, nil
}

// WriteFileStreaming returns a writer for a file object whose content is not known in advance.
//
// This is not supported by archive repositories.
func (tx *Transaction) WriteFileStreaming(ctx context.Context, header model.FileHeader) (*StreamingFile, error) {
	if err := tx.beforeWrite(); err != nil {
		return nil, err
	}
	w, err := tx.repo.objects.NewFileWriter(ctx, header)
	if err != nil {
		return nil, err
	}
	return &StreamingFile{tx: tx, w: w}, nil
}

// WriteDirectoryToMtree imports the content of root in fs into a mutable tree.
//
// When the modifier has the GenerateSizes flag, the next commit records the sizes of new file objects.
func (tx *Transaction) WriteDirectoryToMtree(ctx context.Context, fs afero.Fs, root string, mt *mtree.MutableTree, modifier *mtree.Modifier) error {
	if err := tx.beforeWrite(); err != nil {
		return err
	}
	m := &mtree.Modifier{}
	if modifier != nil {
		*m = *modifier
	}
	if m.Has(mtree.GenerateSizes) {
		tx.GenerateSizes(true)
	}
	if m.Xattrs == nil && !m.Has(mtree.SkipXattrs) && !tx.repo.config.DisableXattrs() {
		m.Xattrs = xattrsReaderFor(fs)
	}
	return mt.ImportDirectory(ctx, tx, fs, root, m)
}

// WriteMtree writes the dirtrees of a mutable tree and returns its root
func (tx *Transaction) WriteMtree(ctx context.Context, mt *mtree.MutableTree) (Root, error) {
	if err := tx.beforeWrite(); err != nil {
		return Root{}, err
	}
	if mt.MetadataChecksum() == "" {
		if err := mt.SetMetadata(ctx, tx, model.DefaultDirMeta()); err != nil {
			return Root{}, err
		}
	}
	tree, meta, err := mt.Flush(ctx, tx)
	if err != nil {
		return Root{}, err
	}
	return Root{Tree: tree, Meta: meta}, nil
}

// WriteCommit writes a commit timestamped now
func (tx *Transaction) WriteCommit(ctx context.Context, parent, subject, body string, metadata map[string][]byte, root Root) (cafs.Key, error) {
	return tx.WriteCommitWithTime(ctx, parent, subject, body, metadata, root, time.Now())
}

// WriteCommitWithTime writes a commit with an explicit timestamp.
//
// When sizes are generated, the size table of the file objects written since the previous commit
// is added to the metadata.
func (tx *Transaction) WriteCommitWithTime(ctx context.Context, parent, subject, body string, metadata map[string][]byte, root Root, ts time.Time) (cafs.Key, error) {
	if parent != "" {
		if err := model.ValidateChecksum(parent); err != nil {
			return cafs.Key{}, err
		}
	}
	commit := &model.Commit{
		Parent:    parent,
		Subject:   subject,
		Body:      body,
		Timestamp: ts.UTC().Unix(),
		RootTree:  root.Tree.String(),
		RootMeta:  root.Meta.String(),
		Metadata:  make(map[string][]byte, len(metadata)+1),
	}
	for k, v := range metadata {
		commit.Metadata[k] = v
	}

	tx.mx.Lock()
	if tx.generateSizes {
		sizes := cafs.EncodeSizes(tx.sizes, false)
		if sizes == nil {
			sizes = []byte{}
		}
		commit.Metadata[model.MetadataSizes] = sizes
	}
	tx.mx.Unlock()

	res, err := tx.WriteMetadata(ctx, commit, nil)
	if err != nil {
		return cafs.Key{}, err
	}

	tx.mx.Lock()
	tx.sizes = nil
	tx.mx.Unlock()
	tx.l.Debug("wrote commit", zap.Stringer("commit", res.Key), zap.String("subject", subject))
	return res.Key, nil
}

// SetRef stages the update of a ref, or its deletion when key is nil
func (tx *Transaction) SetRef(remote, ref string, key *cafs.Key) error {
	spec, err := validateRef(remote, ref)
	if err != nil {
		return err
	}
	tx.mx.Lock()
	defer tx.mx.Unlock()
	if err := tx.checkActive(); err != nil {
		return err
	}
	if key != nil {
		k := *key
		key = &k
	}
	tx.refs[spec] = key
	return nil
}

// StageConfig stages a new main configuration, applied with the refs on commit
func (tx *Transaction) StageConfig(cfg *config.Config) error {
	tx.mx.Lock()
	defer tx.mx.Unlock()
	if err := tx.checkActive(); err != nil {
		return err
	}
	tx.config = cfg
	return nil
}

type stagedRef struct {
	spec     model.Refspec
	key      *cafs.Key
	staged   string
	previous []byte
}

// Commit applies the staged ref updates and ends the transaction.
//
// Ref updates are applied together under the exclusive repository lock: if one fails,
// the refs already updated are restored.
func (tx *Transaction) Commit(ctx context.Context) (TransactionStats, error) {
	tx.mx.Lock()
	defer tx.mx.Unlock()
	if err := tx.checkActive(); err != nil {
		return TransactionStats{}, err
	}
	r := tx.repo

	if err := r.lock.Push(ctx, lock.Exclusive); err != nil {
		return TransactionStats{}, err
	}
	err := tx.apply(ctx)
	err = errs.Combine(err, r.lock.Pop(lock.Exclusive))
	if err != nil {
		// the transaction stays open: it may be retried or aborted
		return TransactionStats{}, err
	}

	tx.stats.RefsUpdated = len(tx.refs)
	tx.end(txCommitted)
	tx.l.Info("transaction committed",
		zap.Int("refs", tx.stats.RefsUpdated),
		zap.Int("content_objects_written", tx.stats.ContentObjectsWritten),
		zap.Int("metadata_objects_written", tx.stats.MetadataObjectsWritten),
		zap.String("content_written", units.BytesSize(float64(tx.stats.ContentBytesWritten))),
	)
	return tx.stats, nil
}

func (tx *Transaction) apply(ctx context.Context) error {
	r := tx.repo
	if tx.config != nil {
		if err := r.config.ValidateNewConfig(tx.config); err != nil {
			return status.ErrRefLocation.Wrap(err)
		}
	}

	specs := make([]model.Refspec, 0, len(tx.refs))
	for spec := range tx.refs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].String() < specs[j].String() })

	stageDir := path.Join(tmpDir, "txn-"+tx.id.String())
	defer func() {
		_ = r.fs.RemoveAll(stageDir)
	}()

	staged := make([]*stagedRef, 0, len(specs))
	for i, spec := range specs {
		s := &stagedRef{spec: spec, key: tx.refs[spec]}
		previous, err := storage.ReadAll(ctx, r.store, model.RefPath(spec.Remote, spec.Ref))
		switch {
		case err == nil:
			s.previous = previous
		case !errors.Is(err, errors.ErrNotFound):
			return err
		}
		if s.key != nil {
			s.staged = path.Join(stageDir, strconv.Itoa(i))
			if err := r.store.Put(ctx, s.staged, bytes.NewReader(refContent(*s.key)), storage.OverWrite); err != nil {
				return err
			}
		}
		staged = append(staged, s)
	}

	for i, s := range staged {
		pth := model.RefPath(s.spec.Remote, s.spec.Ref)
		var err error
		if tx.beforeRefUpdate != nil {
			err = tx.beforeRefUpdate(s.spec)
		}
		switch {
		case err != nil:
		case s.key == nil:
			err = r.store.Delete(ctx, pth)
		default:
			err = r.store.Rename(ctx, s.staged, pth)
		}
		if err != nil {
			tx.l.Error("applying ref update failed, rolling back", zap.Stringer("ref", s.spec), zap.Error(err))
			return errs.Combine(err, tx.rollback(ctx, staged[:i]))
		}
	}

	if tx.config != nil {
		if err := r.config.WriteConfig(tx.config); err != nil {
			return errs.Combine(err, tx.rollback(ctx, staged))
		}
	}
	return nil
}

func (tx *Transaction) rollback(ctx context.Context, applied []*stagedRef) error {
	var errList errs.Group
	for _, s := range applied {
		pth := model.RefPath(s.spec.Remote, s.spec.Ref)
		if s.previous == nil {
			errList.Add(tx.repo.store.Delete(ctx, pth))
			continue
		}
		errList.Add(tx.repo.store.Put(ctx, pth, bytes.NewReader(s.previous), storage.OverWrite))
	}
	return errList.Err()
}

// Abort ends the transaction without applying staged ref updates.
//
// Objects already written are kept: unreferenced ones are removed by a later prune.
// Aborting an ended transaction is a no-op.
func (tx *Transaction) Abort() error {
	tx.mx.Lock()
	defer tx.mx.Unlock()
	if tx.state != txActive {
		return nil
	}
	tx.end(txAborted)
	tx.l.Debug("transaction aborted")
	return nil
}

// end the transaction: must be called with tx.mx held
func (tx *Transaction) end(state txState) {
	tx.state = state
	tx.refs = nil
	tx.sizes = nil
	r := tx.repo
	r.mx.Lock()
	if r.txn == tx {
		r.txn = nil
	}
	r.mx.Unlock()
	if err := r.lock.Pop(lock.Shared); err != nil {
		tx.l.Warn("releasing transaction lock", zap.Error(err))
	}
}

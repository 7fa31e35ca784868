// Package core implements a repository of content-addressed objects.
//
// A repository stores files, directory trees and commits in a content-addressable store,
// and maps refs to commits. All changes to refs happen within a transaction:
//
//	tx, err := repo.PrepareTransaction(ctx)
//	...
//	root, err := tx.WriteMtree(ctx, tree)
//	commit, err := tx.WriteCommit(ctx, "", "subject", "body", nil, root)
//	err = tx.SetRef("", "main", &commit)
//	stats, err := tx.Commit(ctx)
//
// Processes sharing a repository coordinate with a file lock: transactions hold it in
// shared mode and take it in exclusive mode only to apply their ref changes.
package core

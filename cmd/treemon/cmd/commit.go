package cmd

import (
	"context"
	"log"
	"path/filepath"

	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core"
	"github.com/oneconcern/treemon/pkg/mtree"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
)

func commitModifier() *mtree.Modifier {
	var flags mtree.ModifierFlags
	if treemonFlags.commit.sizes {
		flags |= mtree.GenerateSizes
	}
	if treemonFlags.commit.skipXattrs {
		flags |= mtree.SkipXattrs
	}
	if treemonFlags.commit.canonical {
		flags |= mtree.CanonicalPermissions
	}
	return &mtree.Modifier{Flags: flags}
}

func commitDirectory(ctx context.Context, repo *core.Repo, dir string) (cafs.Key, core.TransactionStats, error) {
	var parent string
	if treemonFlags.commit.parent != "" {
		key, err := repo.ResolveRev(ctx, treemonFlags.commit.parent, false)
		if err != nil {
			return cafs.Key{}, core.TransactionStats{}, err
		}
		parent = key.String()
	} else {
		key, err := repo.ResolveRev(ctx, treemonFlags.commit.branch, true)
		if err != nil {
			return cafs.Key{}, core.TransactionStats{}, err
		}
		if !key.IsZero() {
			parent = key.String()
		}
	}

	tx, err := repo.PrepareTransaction(ctx)
	if err != nil {
		return cafs.Key{}, core.TransactionStats{}, err
	}
	key, err := func() (cafs.Key, error) {
		mt := mtree.New()
		if err := tx.WriteDirectoryToMtree(ctx, afero.NewOsFs(), dir, mt, commitModifier()); err != nil {
			return cafs.Key{}, err
		}
		root, err := tx.WriteMtree(ctx, mt)
		if err != nil {
			return cafs.Key{}, err
		}
		key, err := tx.WriteCommit(ctx, parent, treemonFlags.commit.subject, treemonFlags.commit.body, nil, root)
		if err != nil {
			return cafs.Key{}, err
		}
		return key, tx.SetRef("", treemonFlags.commit.branch, &key)
	}()
	if err != nil {
		return cafs.Key{}, core.TransactionStats{}, errs.Combine(err, tx.Abort())
	}
	stats, err := tx.Commit(ctx)
	if err != nil {
		return cafs.Key{}, core.TransactionStats{}, errs.Combine(err, tx.Abort())
	}
	return key, stats, nil
}

var commitCmd = &cobra.Command{
	Use:   "commit DIR",
	Short: "Commit a directory to a branch",
	Long: `Import the content of a directory and record it as a new commit on a branch.

Only the files which are not stored yet are written. The parent of the commit is the
previous head of the branch, unless --parent says otherwise.`,
	Example: `% treemon commit --repo /srv/repo -b os/x86_64/stable -s "release 42" ./rootfs
8c1ad3f0c6f1b0e0d55e0c8c3f6e2b1b5d1b0d4c3f7ab1a2e1c0b5e7f6d3a2b1`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		dir, err := filepath.Abs(args[0])
		if err != nil {
			wrapFatalln("source directory", err)
			return
		}
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		key, stats, err := commitDirectory(ctx, repo, dir)
		if err != nil {
			wrapFatalln("commit", err)
			return
		}
		infoLogger.Println(key.String())
		log.Printf("metadata: %d/%d written, content: %d/%d written (%d bytes)",
			stats.MetadataObjectsWritten, stats.MetadataObjectsTotal,
			stats.ContentObjectsWritten, stats.ContentObjectsTotal, stats.ContentBytesWritten)
	},
}

func init() {
	requiredFlags := []string{addBranchFlag(commitCmd), addSubjectFlag(commitCmd)}
	addParentFlag(commitCmd)
	addBodyFlag(commitCmd)
	addCommitModifierFlags(commitCmd)
	for _, flag := range requiredFlags {
		if err := commitCmd.MarkFlagRequired(flag); err != nil {
			logFatalln(err)
		}
	}
	rootCmd.AddCommand(commitCmd)
}

package cmd

import (
	"context"

	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/cobra"
)

var revParseCmd = &cobra.Command{
	Use:   "rev-parse REV",
	Short: "Print the commit of a revision",
	Long: `Print the checksum of the commit designated by a revision.

A revision is a checksum, a branch, or a remote branch written REMOTE:BRANCH.
Each trailing ^ designates the parent of the previous commit.`,
	Example: `% treemon rev-parse os/stable^`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		key, err := repo.ResolveRev(context.Background(), args[0], false)
		if err != nil {
			wrapFatalln("resolve revision", err)
			return
		}
		infoLogger.Println(key.String())
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs [PREFIX]",
	Short: "List or delete refs",
	Long: `List the refs of the repository, with the commit each of them points to.

With --delete, the ref given as argument is deleted instead. Deleting a missing ref is not an error.`,
	Example: `% treemon refs os/
os/stable 8c1ad3f0c6f1b0e0d55e0c8c3f6e2b1b5d1b0d4c3f7ab1a2e1c0b5e7f6d3a2b1
% treemon refs --delete os/testing`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		if treemonFlags.refs.delete {
			if len(args) == 0 {
				logFatalln("no ref to delete")
				return
			}
			spec, err := model.ParseRefspec(args[0])
			if err != nil {
				wrapFatalln("invalid ref", err)
				return
			}
			if err = repo.SetRefImmediate(ctx, spec.Remote, spec.Ref, nil); err != nil {
				wrapFatalln("delete ref", err)
				return
			}
			return
		}

		var prefix string
		if len(args) > 0 {
			prefix = args[0]
		}
		refs, err := repo.ListRefs(ctx, prefix)
		if err != nil {
			wrapFatalln("list refs", err)
			return
		}
		for _, ref := range refs {
			infoLogger.Printf("%s %s", ref.Refspec, ref.Checksum)
		}
	},
}

func init() {
	addDeleteRefFlag(refsCmd)
	rootCmd.AddCommand(revParseCmd)
	rootCmd.AddCommand(refsCmd)
}

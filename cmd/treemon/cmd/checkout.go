package cmd

import (
	"context"
	"path/filepath"

	"github.com/oneconcern/treemon/pkg/core"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func checkoutOptions() core.CheckoutOptions {
	opts := core.CheckoutOptions{
		Ownership: treemonFlags.checkout.ownership,
		Parallel:  treemonFlags.checkout.parallel,
	}
	switch {
	case treemonFlags.checkout.union:
		opts.Overwrite = core.OverwriteUnion
	case treemonFlags.checkout.addFiles:
		opts.Overwrite = core.OverwriteAddFiles
	}
	return opts
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout REV DEST",
	Short: "Check out the tree of a commit",
	Long: `Write the tree of a commit to a directory.

Existing files make the checkout fail, unless --union replaces them or --union-add keeps them.`,
	Example: `% treemon checkout os/stable /mnt/rootfs`,
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		dest, err := filepath.Abs(args[1])
		if err != nil {
			wrapFatalln("destination", err)
			return
		}
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		key, err := repo.ResolveRev(ctx, args[0], false)
		if err != nil {
			wrapFatalln("resolve revision", err)
			return
		}
		if err = repo.Checkout(ctx, key, afero.NewOsFs(), dest, checkoutOptions()); err != nil {
			wrapFatalln("checkout", err)
			return
		}
	},
}

func init() {
	addCheckoutFlags(checkoutCmd)
	rootCmd.AddCommand(checkoutCmd)
}

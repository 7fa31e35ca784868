package cmd

import (
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/core"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a repository",
	Long: `Create an empty repository at the path given by --repo.

A bare repository stores files as they are. An archive repository compresses file contents.`,
	Example: `% treemon init --repo /srv/repo --mode archive`,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		mode, err := cafs.ParseMode(treemonFlags.repo.mode)
		if err != nil {
			wrapFatalln("invalid repository mode", err)
			return
		}
		opts, err := repoOptions()
		if err != nil {
			wrapFatalln("repository options", err)
			return
		}
		repo, err := core.CreateRepo(treemonFlags.root.repo, mode, opts...)
		if err != nil {
			wrapFatalln("create repository", err)
			return
		}
		if err = repo.Close(); err != nil {
			wrapFatalln("close repository", err)
			return
		}
		infoLogger.Printf("created %s repository at %s", mode, repo.Path())
	},
}

func init() {
	addModeFlag(initCmd)
	rootCmd.AddCommand(initCmd)
}

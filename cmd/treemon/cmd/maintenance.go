package cmd

import (
	"context"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/treemon/pkg/core"
	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Check the integrity of the repository",
	Long: `Re-hash every stored object and check that every commit has all of its content.

The command exits with status 2 when some object is corrupted, and 3 when some object is missing.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		report, err := repo.Fsck(context.Background(), core.WithFsckParallel(treemonFlags.fsck.parallel))
		for _, ref := range report.Corrupted {
			infoLogger.Printf("%s %s", color.RedString("corrupted"), ref)
		}
		for _, ref := range report.Missing {
			infoLogger.Printf("%s %s", color.YellowString("missing"), ref)
		}
		switch {
		case len(report.Corrupted) > 0:
			wrapFatalWithCodef(2, "%d objects checked, %d corrupted", report.Checked, len(report.Corrupted))
			return
		case len(report.Missing) > 0:
			wrapFatalWithCodef(3, "%d objects checked, %d missing", report.Checked, len(report.Missing))
			return
		case err != nil:
			wrapFatalln("fsck", err)
			return
		}
		infoLogger.Printf("%d objects checked", report.Checked)
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete unreachable objects",
	Long: `Delete the objects which no commit needs.

By default, every stored commit is kept with its content. With --refs-only, only the commits
reachable from refs are kept, up to --depth parents.`,
	Example: `% treemon prune --refs-only --depth 0
12 objects pruned out of 30, 4.1MB freed`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		stats, err := repo.Prune(context.Background(),
			core.WithPruneRefsOnly(treemonFlags.prune.refsOnly),
			core.WithPruneDryRun(treemonFlags.prune.dryRun),
			core.WithPruneDepth(treemonFlags.prune.depth),
		)
		if err != nil {
			wrapFatalln("prune", err)
			return
		}
		verb := "pruned"
		if treemonFlags.prune.dryRun {
			verb = "would be pruned"
		}
		infoLogger.Printf("%d objects %s out of %d, %s freed",
			stats.ObjectsPruned, verb, stats.ObjectsTotal, units.HumanSize(float64(stats.BytesFreed)))
	},
}

func init() {
	addParallelFlag(fsckCmd, &treemonFlags.fsck.parallel, 8)
	addPruneFlags(pruneCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(pruneCmd)
}

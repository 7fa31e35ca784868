package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/cobra"
)

// logCmd represents the log command
var logCmd = &cobra.Command{
	Use:   "log REV",
	Short: "Get commit history",
	Long:  `Displays the commits leading to a revision, newest first, with their messages`,
	Example: `% treemon log -n 2 os/stable
 commit:  8c1ad3f0c6f1b0e0d55e0c8c3f6e2b1b5d1b0d4c3f7ab1a2e1c0b5e7f6d3a2b1
   Date:  2021-03-04T10:00:00Z

release 42`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
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
		w := infoLogger.Writer()
		for shown := 0; treemonFlags.log.max <= 0 || shown < treemonFlags.log.max; shown++ {
			c, err := repo.LoadCommit(ctx, key)
			if err != nil {
				wrapFatalln("load commit", err)
				return
			}
			fmt.Fprint(w, " commit:  ")
			fmt.Fprintln(w, color.MagentaString(key.String()))
			fmt.Fprint(w, "   Date:  ")
			fmt.Fprintln(w, color.YellowString(time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339)))
			fmt.Fprintln(w)
			fmt.Fprintln(w, c.Subject)
			if c.Body != "" {
				fmt.Fprintln(w)
				fmt.Fprintln(w, c.Body)
			}
			fmt.Fprintln(w)
			if c.Parent == "" {
				return
			}
			if key, err = cafs.KeyFromString(c.Parent); err != nil {
				wrapFatalln("invalid parent", err)
				return
			}
			if has, _ := repo.HasObject(ctx, key, model.ObjectCommit); !has {
				// history truncated by a pull or a prune
				fmt.Fprintln(w, color.HiBlackString("(history truncated at %s)", key))
				return
			}
		}
	},
}

var showSizesCmd = &cobra.Command{
	Use:   "show-sizes REV",
	Short: "Show the sizes of the objects introduced by a commit",
	Long: `Displays the size table recorded by a commit made with --generate-sizes:
the compressed and uncompressed size of each new file.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
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
		sizes, err := repo.ReadCommitSizes(ctx, key)
		if err != nil {
			wrapFatalln("read sizes", err)
			return
		}
		var compressed, uncompressed uint64
		for _, entry := range sizes {
			infoLogger.Printf("%s %d %d", entry.Key, entry.Compressed, entry.Uncompressed)
			compressed += entry.Compressed
			uncompressed += entry.Uncompressed
		}
		log.Printf("%d objects, %s compressed, %s uncompressed", len(sizes),
			units.HumanSize(float64(compressed)), units.HumanSize(float64(uncompressed)))
	},
}

func init() {
	addMaxFlag(logCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showSizesCmd)
}

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/oneconcern/treemon/pkg/config"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Commands to manage remotes",
	Long: `Remotes are the sources of pulled commits.

A remote is defined either in the configuration of the repository, or by a NAME.conf file
of the remotes config directory.`,
}

func remoteOptions() (map[string]string, error) {
	options := make(map[string]string, len(treemonFlags.remote.options)+2)
	for _, opt := range treemonFlags.remote.options {
		kv := strings.SplitN(opt, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("invalid option %q: expected KEY=VALUE", opt)
		}
		options[kv[0]] = kv[1]
	}
	if len(treemonFlags.remote.branches) > 0 {
		options[config.KeyBranches] = strings.Join(treemonFlags.remote.branches, ";")
	}
	if treemonFlags.remote.noGPG {
		options[config.KeyGPGVerify] = "false"
	}
	return options, nil
}

var remoteAddCmd = &cobra.Command{
	Use:     "add NAME URL",
	Short:   "Add a remote",
	Example: `% treemon remote add --no-gpg-verify --branch os/stable upstream file:///srv/repo`,
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		options, err := remoteOptions()
		if err != nil {
			wrapFatalln("remote options", err)
			return
		}
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		mode := config.ChangeAdd
		if treemonFlags.remote.replace {
			mode = config.ChangeReplace
		}
		if err = repo.RemoteChange(context.Background(), mode, args[0], args[1], options); err != nil {
			wrapFatalln("add remote", err)
			return
		}
	},
}

var remoteDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a remote",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		if err = repo.RemoteDelete(context.Background(), args[0]); err != nil {
			wrapFatalln("delete remote", err)
			return
		}
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		for _, name := range repo.RemoteList() {
			remote, err := repo.RemoteGet(name)
			if err != nil {
				wrapFatalln("get remote", err)
				return
			}
			infoLogger.Printf("%s\t%s", remote.Name, color.HiBlackString(remote.URL))
		}
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the options of a remote",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		remote, err := repo.RemoteGet(args[0])
		if err != nil {
			wrapFatalln("get remote", err)
			return
		}
		infoLogger.Printf("%s = %s", config.KeyURL, remote.URL)
		keys := make([]string, 0, len(remote.Options))
		for k := range remote.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			infoLogger.Printf("%s = %s", k, remote.Options[k])
		}
		infoLogger.Printf("# defined in %s (%s)", remote.File, remote.Location)
	},
}

func init() {
	addRemoteOptionFlags(remoteAddCmd)
	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteDeleteCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteShowCmd)
	rootCmd.AddCommand(remoteCmd)
}

package cmd

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/oneconcern/treemon/pkg/config"
	"github.com/oneconcern/treemon/pkg/core"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
)

// localRemotePath returns the path of a remote reachable on this host, given as a path or a file:// url
func localRemotePath(remote *config.Remote) (string, error) {
	u, err := url.Parse(remote.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "":
		return remote.URL, nil
	case "file":
		return u.Path, nil
	default:
		return "", fmt.Errorf("remote %q: unsupported url scheme %q", remote.Name, u.Scheme)
	}
}

func pullLocal(ctx context.Context, repo *core.Repo, name string, refs []string, depth int) (map[string]string, error) {
	remote, err := repo.RemoteGet(name)
	if err != nil {
		return nil, err
	}
	pth, err := localRemotePath(remote)
	if err != nil {
		return nil, err
	}
	opts, err := repoOptions()
	if err != nil {
		return nil, err
	}
	source, err := core.OpenRepo(pth, opts...)
	if err != nil {
		return nil, err
	}
	fetched, err := repo.Pull(ctx, name, refs, &core.LocalPuller{Source: source, Depth: depth}, nil)
	if err != nil {
		return nil, errs.Combine(err, source.Close())
	}
	result := make(map[string]string, len(fetched))
	for ref, key := range fetched {
		result[ref] = key.String()
	}
	return result, source.Close()
}

var pullCmd = &cobra.Command{
	Use:   "pull REMOTE [BRANCH...]",
	Short: "Pull branches from a remote",
	Long: `Copy the commits of some branches of a remote, with their content, and update the matching
remote refs REMOTE:BRANCH. Without branch, the branches listed by the remote are pulled.

Remotes are repositories of this host, given by path or file:// url. Remotes which require signed
commits are refused.`,
	Example: `% treemon pull upstream os/stable
upstream:os/stable 8c1ad3f0c6f1b0e0d55e0c8c3f6e2b1b5d1b0d4c3f7ab1a2e1c0b5e7f6d3a2b1`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepo()
		if err != nil {
			wrapFatalln("open repository", err)
			return
		}
		defer func() { _ = repo.Close() }()

		fetched, err := pullLocal(context.Background(), repo, args[0], args[1:], treemonFlags.pull.depth)
		if err != nil {
			wrapFatalln("pull", err)
			return
		}
		refs := make([]string, 0, len(fetched))
		for ref := range fetched {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			infoLogger.Printf("%s:%s %s", args[0], ref, fetched[ref])
		}
	},
}

func init() {
	addPullDepthFlag(pullCmd)
	rootCmd.AddCommand(pullCmd)
}

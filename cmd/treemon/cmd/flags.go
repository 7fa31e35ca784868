package cmd

import (
	"github.com/docker/go-units"
	"github.com/oneconcern/treemon/pkg/cafs"
	"github.com/spf13/cobra"
)

type flagsT struct {
	root struct {
		repo     string
		sysroot  string
		logLevel string
		cpuProf  string
		memProf  string
	}
	repo struct {
		mode        string
		remotesDir  string
		systemRepo  bool
		cacheSize   string
		verifyWrite bool
	}
	commit struct {
		branch     string
		parent     string
		subject    string
		body       string
		sizes      bool
		skipXattrs bool
		canonical  bool
	}
	checkout struct {
		union     bool
		addFiles  bool
		ownership bool
		parallel  int
	}
	prune struct {
		refsOnly bool
		dryRun   bool
		depth    int
	}
	pull struct {
		depth int
	}
	remote struct {
		options  []string
		branches []string
		noGPG    bool
		replace  bool
	}
	refs struct {
		delete bool
	}
	log struct {
		max int
	}
	fsck struct {
		parallel int
	}
	admin struct {
		os       string
		origin   string
		noMerge  bool
		noWrite  bool
		format   string
		parallel int
	}
}

var treemonFlags = flagsT{}

func addRepoFlag(cmd *cobra.Command) string {
	repo := "repo"
	cmd.PersistentFlags().StringVar(&treemonFlags.root.repo, repo, "", "Path to the repository (env: TREEMON_REPO)")
	return repo
}

func addSysrootFlag(cmd *cobra.Command) string {
	sysroot := "sysroot"
	cmd.PersistentFlags().StringVar(&treemonFlags.root.sysroot, sysroot, "", "Path to the sysroot (env: TREEMON_SYSROOT)")
	return sysroot
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "loglevel"
	cmd.PersistentFlags().StringVar(&treemonFlags.root.logLevel, logLevel, "", "The log level of the library: debug, info, warn, error or none (env: TREEMON_LOGLEVEL)")
	return logLevel
}

func addProfilingFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&treemonFlags.root.cpuProf, "cpuprof", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&treemonFlags.root.memProf, "memprof", "", "Write memory profiles to this directory when the command completes")
	_ = cmd.PersistentFlags().MarkHidden("cpuprof")
	_ = cmd.PersistentFlags().MarkHidden("memprof")
}

func addModeFlag(cmd *cobra.Command) string {
	mode := "mode"
	cmd.Flags().StringVar(&treemonFlags.repo.mode, mode, string(cafs.ModeBare), "The storage mode of the repository: bare or archive")
	return mode
}

func addRemotesDirFlag(cmd *cobra.Command) string {
	remotesDir := "remotes-config-dir"
	cmd.PersistentFlags().StringVar(&treemonFlags.repo.remotesDir, remotesDir, "", "Directory holding one NAME.conf file per remote")
	return remotesDir
}

func addSystemRepoFlag(cmd *cobra.Command) string {
	system := "system"
	cmd.PersistentFlags().BoolVar(&treemonFlags.repo.systemRepo, system, false, "The repository is the system repository of a sysroot: remotes are added to the remotes config directory")
	return system
}

func addCacheSizeFlag(cmd *cobra.Command) string {
	cacheSize := "cache-size"
	cmd.PersistentFlags().StringVar(&treemonFlags.repo.cacheSize, cacheSize, "", "The number of metadata objects kept in memory, e.g. 10k")
	return cacheSize
}

func addVerifyExistingFlag(cmd *cobra.Command) string {
	verify := "verify-existing"
	cmd.PersistentFlags().BoolVar(&treemonFlags.repo.verifyWrite, verify, false, "Re-hash objects already stored before skipping their write")
	return verify
}

func addBranchFlag(cmd *cobra.Command) string {
	branch := "branch"
	cmd.Flags().StringVarP(&treemonFlags.commit.branch, branch, "b", "", "The branch to commit to")
	return branch
}

func addParentFlag(cmd *cobra.Command) string {
	parent := "parent"
	cmd.Flags().StringVar(&treemonFlags.commit.parent, parent, "", "The parent of the commit. Defaults to the head of the branch")
	return parent
}

func addSubjectFlag(cmd *cobra.Command) string {
	subject := "subject"
	cmd.Flags().StringVarP(&treemonFlags.commit.subject, subject, "s", "", "The subject of the commit")
	return subject
}

func addBodyFlag(cmd *cobra.Command) string {
	body := "body"
	cmd.Flags().StringVarP(&treemonFlags.commit.body, body, "m", "", "The body of the commit message")
	return body
}

func addCommitModifierFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&treemonFlags.commit.sizes, "generate-sizes", false, "Record the sizes of new objects in the commit")
	cmd.Flags().BoolVar(&treemonFlags.commit.skipXattrs, "no-xattrs", false, "Do not import extended attributes")
	cmd.Flags().BoolVar(&treemonFlags.commit.canonical, "canonical-permissions", false, "Import files as 0644 or 0755, owned by root")
}

func addCheckoutFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&treemonFlags.checkout.union, "union", "U", false, "Replace existing files")
	cmd.Flags().BoolVar(&treemonFlags.checkout.addFiles, "union-add", false, "Keep existing files, add missing ones")
	cmd.Flags().BoolVar(&treemonFlags.checkout.ownership, "ownership", false, "Apply the owners recorded in the commit")
	addParallelFlag(cmd, &treemonFlags.checkout.parallel, 8)
}

func addParallelFlag(cmd *cobra.Command, target *int, dflt int) string {
	parallel := "parallel"
	cmd.Flags().IntVar(target, parallel, dflt, "The number of files processed concurrently")
	return parallel
}

func addPruneFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&treemonFlags.prune.refsOnly, "refs-only", false, "Only keep objects reachable from refs")
	cmd.Flags().BoolVar(&treemonFlags.prune.dryRun, "dry-run", false, "Report what would be deleted, without deleting anything")
	cmd.Flags().IntVar(&treemonFlags.prune.depth, "depth", -1, "The depth of history kept from each ref. -1 keeps the whole history")
}

func addPullDepthFlag(cmd *cobra.Command) string {
	depth := "depth"
	cmd.Flags().IntVar(&treemonFlags.pull.depth, depth, 0, "The depth of history to pull. -1 pulls the whole history")
	return depth
}

func addRemoteOptionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&treemonFlags.remote.options, "set", "o", nil, "Set an option of the remote, as KEY=VALUE")
	cmd.Flags().StringSliceVar(&treemonFlags.remote.branches, "branch", nil, "Restrict the branches which may be pulled from the remote")
	cmd.Flags().BoolVar(&treemonFlags.remote.noGPG, "no-gpg-verify", false, "Do not verify the signatures of commits pulled from the remote")
	cmd.Flags().BoolVar(&treemonFlags.remote.replace, "replace", false, "Replace all the options of an existing remote")
}

func addDeleteRefFlag(cmd *cobra.Command) string {
	del := "delete"
	cmd.Flags().BoolVar(&treemonFlags.refs.delete, del, false, "Delete the given refs")
	return del
}

func addMaxFlag(cmd *cobra.Command) string {
	max := "max"
	cmd.Flags().IntVarP(&treemonFlags.log.max, max, "n", 0, "The maximum number of commits to show. 0 shows the whole history")
	return max
}

func addOsFlag(cmd *cobra.Command) string {
	osname := "os"
	cmd.Flags().StringVar(&treemonFlags.admin.os, osname, "", "The name of the operating system")
	return osname
}

func addDeployFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&treemonFlags.admin.origin, "origin", "", "The refspec followed by upgrades. Defaults to the revision, when it is a refspec")
	cmd.Flags().BoolVar(&treemonFlags.admin.noMerge, "no-merge", false, "Do not carry over the configuration of the current deployment")
	cmd.Flags().BoolVar(&treemonFlags.admin.noWrite, "no-write", false, "Do not add the deployment to the boot menu")
	addParallelFlag(cmd, &treemonFlags.admin.parallel, 8)
}

func addFormatFlag(cmd *cobra.Command) string {
	format := "format"
	cmd.Flags().StringVar(&treemonFlags.admin.format, format, "text", "Output format: text or yaml")
	return format
}

func parseCacheSize(value string) (int, error) {
	if value == "" {
		return -1, nil
	}
	size, err := units.FromHumanSize(value)
	if err != nil {
		return 0, err
	}
	return int(size), nil
}

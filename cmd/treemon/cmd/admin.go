package cmd

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/oneconcern/treemon/pkg/sysroot"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"gopkg.in/yaml.v2"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Commands to manage the deployments of a sysroot",
	Long: `A sysroot holds a system repository, the checked out trees of the operating systems
it boots, and a boot menu listing these deployments.

The boot menu is replaced atomically: a reboot at any time finds either the previous menu or the new one.`,
}

// withSysroot loads the sysroot given by --sysroot, runs fn, then closes it
func withSysroot(ctx context.Context, fn func(*sysroot.Sysroot) error, opts ...sysroot.Option) error {
	s, err := openSysroot(opts...)
	if err != nil {
		return err
	}
	if err = s.Load(ctx); err != nil {
		return errs.Combine(err, s.Close())
	}
	return errs.Combine(fn(s), s.Close())
}

var adminInitFsCmd = &cobra.Command{
	Use:   "init-fs",
	Short: "Initialize a sysroot",
	Long:  `Create the system repository, the deployment root and an empty boot menu, when missing`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openSysroot()
		if err != nil {
			wrapFatalln("open sysroot", err)
			return
		}
		if err = errs.Combine(s.EnsureInitialized(context.Background()), s.Close()); err != nil {
			wrapFatalln("initialize sysroot", err)
			return
		}
	},
}

var adminInitOsCmd = &cobra.Command{
	Use:   "os-init OSNAME",
	Short: "Initialize the state directories of an operating system",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		err := withSysroot(ctx, func(s *sysroot.Sysroot) error {
			return s.InitOsname(ctx, args[0])
		})
		if err != nil {
			wrapFatalln("initialize operating system", err)
			return
		}
	},
}

var adminDeployCmd = &cobra.Command{
	Use:   "deploy REV",
	Short: "Deploy a commit and add it to the top of the boot menu",
	Long: `Check out a commit as a new deployment of an operating system.

The configuration changes of the current deployment are carried over to the new one,
unless --no-merge is given. The new deployment becomes the default boot entry, unless
--no-write is given.`,
	Example: `% treemon admin deploy --os fedora os/stable
fedora 8c1ad3f0c6f1b0e0d55e0c8c3f6e2b1b5d1b0d4c3f7ab1a2e1c0b5e7f6d3a2b1.0`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		var origin *model.Origin
		if treemonFlags.admin.origin != "" {
			origin = &model.Origin{Refspec: treemonFlags.admin.origin}
		}
		err := withSysroot(ctx, func(s *sysroot.Sysroot) error {
			var merge *model.Deployment
			if !treemonFlags.admin.noMerge {
				merge = s.MergeDeployment(treemonFlags.admin.os)
			}
			d, err := s.Deploy(ctx, treemonFlags.admin.os, args[0], origin, merge)
			if err != nil {
				return err
			}
			infoLogger.Println(d.String())
			if treemonFlags.admin.noWrite {
				return nil
			}
			return s.WriteDeployments(ctx, append([]*model.Deployment{d}, s.Deployments()...))
		}, sysroot.CheckoutParallel(treemonFlags.admin.parallel))
		if err != nil {
			wrapFatalln("deploy", err)
			return
		}
	},
}

var adminUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Deploy the latest commit of the origin of the current deployment",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		err := withSysroot(ctx, func(s *sysroot.Sysroot) error {
			d, changed, err := s.Upgrade(ctx, treemonFlags.admin.os)
			if err != nil {
				return err
			}
			if !changed {
				infoLogger.Printf("%s is up to date", d)
				return nil
			}
			infoLogger.Println(d.String())
			return nil
		}, sysroot.CheckoutParallel(treemonFlags.admin.parallel))
		if err != nil {
			wrapFatalln("upgrade", err)
			return
		}
	},
}

type deploymentStatus struct {
	Index        int    `yaml:"index"`
	OSName       string `yaml:"osname"`
	Checksum     string `yaml:"checksum"`
	Serial       int    `yaml:"serial"`
	BootChecksum string `yaml:"bootcsum"`
	BootSerial   int    `yaml:"bootserial"`
	Origin       string `yaml:"origin,omitempty"`
	Path         string `yaml:"path"`
}

type sysrootStatus struct {
	BootVersion int                `yaml:"bootversion"`
	Deployments []deploymentStatus `yaml:"deployments"`
}

func statusOf(s *sysroot.Sysroot) sysrootStatus {
	st := sysrootStatus{BootVersion: s.BootVersion()}
	for _, d := range s.Deployments() {
		ds := deploymentStatus{
			Index:        d.Index,
			OSName:       d.OSName,
			Checksum:     d.Checksum,
			Serial:       d.DeploySerial,
			BootChecksum: d.BootChecksum,
			BootSerial:   d.BootSerial,
			Path:         s.DeploymentDirectory(d),
		}
		if d.Origin != nil {
			ds.Origin = d.Origin.Refspec
		}
		st.Deployments = append(st.Deployments, ds)
	}
	return st
}

var adminStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the deployments of the boot menu",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		var st sysrootStatus
		err := withSysroot(ctx, func(s *sysroot.Sysroot) error {
			st = statusOf(s)
			return nil
		})
		if err != nil {
			wrapFatalln("load sysroot", err)
			return
		}

		switch treemonFlags.admin.format {
		case "yaml":
			data, err := yaml.Marshal(st)
			if err != nil {
				wrapFatalln("encode status", err)
				return
			}
			infoLogger.Print(string(data))
		case "text":
			for _, d := range st.Deployments {
				marker := " "
				if d.Index == 0 {
					marker = color.GreenString("*")
				}
				infoLogger.Printf("%s %s %s.%d", marker, d.OSName, d.Checksum, d.Serial)
				if d.Origin != "" {
					infoLogger.Printf("    origin: %s", d.Origin)
				}
			}
		default:
			logFatalln(fmt.Sprintf("unknown format %q", treemonFlags.admin.format))
			return
		}
	},
}

var adminCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the deployments missing from the boot menu, and the objects they used",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		var stats sysroot.CleanupStats
		err := withSysroot(ctx, func(s *sysroot.Sysroot) error {
			var err error
			stats, err = s.Cleanup(ctx)
			return err
		})
		if err != nil {
			wrapFatalln("cleanup", err)
			return
		}
		infoLogger.Printf("%d deployments removed, %d objects pruned, %s freed",
			stats.DeploymentsRemoved, stats.Pruned.ObjectsPruned, units.HumanSize(float64(stats.Pruned.BytesFreed)))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{adminDeployCmd, adminUpgradeCmd} {
		if err := cmd.MarkFlagRequired(addOsFlag(cmd)); err != nil {
			logFatalln(err)
		}
	}
	addDeployFlags(adminDeployCmd)
	addParallelFlag(adminUpgradeCmd, &treemonFlags.admin.parallel, 8)
	addFormatFlag(adminStatusCmd)

	adminCmd.AddCommand(adminInitFsCmd)
	adminCmd.AddCommand(adminInitOsCmd)
	adminCmd.AddCommand(adminDeployCmd)
	adminCmd.AddCommand(adminUpgradeCmd)
	adminCmd.AddCommand(adminStatusCmd)
	adminCmd.AddCommand(adminCleanupCmd)
	rootCmd.AddCommand(adminCmd)
}

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/oneconcern/treemon/internal"
	"github.com/oneconcern/treemon/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treemon",
	Short: "Treemon versions file trees and deploys them atomically",
	Long: `Treemon stores file trees in a content-addressed repository, like git does for source code.

Every file, directory and commit is stored once, keyed by the checksum of its content.
Commits may be checked out anywhere, pulled between repositories, and deployed as bootable
trees of a sysroot whose boot menu is replaced atomically.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		if logger, err = dlogger.GetLogger(treemonFlags.root.logLevel); err != nil {
			wrapFatalln("invalid log level", err)
			return
		}
		if treemonFlags.root.cpuProf != "" {
			if stopCPUProf, err = internal.CPUProf(treemonFlags.root.cpuProf); err != nil {
				wrapFatalln("start cpu profile", err)
				return
			}
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopCPUProf != nil {
			if err := stopCPUProf(); err != nil {
				log.Println("stop cpu profile:", err)
			}
			stopCPUProf = nil
		}
		if treemonFlags.root.memProf != "" {
			if err := internal.MemProf(internal.MemProfParams{
				DestDir:    treemonFlags.root.memProf,
				NamePrefix: cmd.Name(),
				Logger:     logger,
			}); err != nil {
				log.Println("write memory profile:", err)
			}
		}
		_ = logger.Sync()
	},
}

var (
	cliConfig   *CLIConfig
	logger      = zap.NewNop()
	stopCPUProf func() error
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addRepoFlag(rootCmd)
	addSysrootFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addRemotesDirFlag(rootCmd)
	addSystemRepoFlag(rootCmd)
	addCacheSizeFlag(rootCmd)
	addVerifyExistingFlag(rootCmd)
	addProfilingFlags(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("repo", ".")
	viper.SetDefault("sysroot", "/")
	viper.SetDefault("loglevel", dlogger.LogLevelWarn)
	if os.Getenv("TREEMON_CONFIG") != "" {
		// Use config file from the flag.
		viper.SetConfigFile(os.Getenv("TREEMON_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.treemon")
		viper.AddConfigPath("/etc/treemon")
		viper.SetConfigName("treemon")
	}

	viper.SetEnvPrefix("treemon")
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}
	var err error
	cliConfig, err = newConfig()
	if err != nil {
		logFatalln(err)
		return
	}
	cliConfig.setTreemonParams(&treemonFlags)
}

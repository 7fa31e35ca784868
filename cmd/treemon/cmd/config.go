package cmd

import (
	"github.com/spf13/viper"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	// bug in viper? Need to keep names of fields the same as the serialized names..
	Repo     string `json:"repo" yaml:"repo"`         // Path to the repository
	Sysroot  string `json:"sysroot" yaml:"sysroot"`   // Path to the sysroot managed by admin commands
	LogLevel string `json:"loglevel" yaml:"loglevel"` // Log level of the library
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *CLIConfig) setTreemonParams(flags *flagsT) {
	if flags.root.repo == "" {
		flags.root.repo = c.Repo
	}
	if flags.root.sysroot == "" {
		flags.root.sysroot = c.Sysroot
	}
	if flags.root.logLevel == "" {
		flags.root.logLevel = c.LogLevel
	}
}

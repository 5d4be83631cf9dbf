// Package cmd provides the command-line interface for treebind with
// configuration from multiple sources.
//
// Configuration precedence, highest first:
//  1. Command-line flags (--config, --strategy, etc.)
//  2. Individual environment variables (TREEBIND_SESSION_STRATEGY, etc.)
//  3. Configuration file (.treebind.yml)
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treebind",
	Short: "Mirror a nested key-value document into a live node tree",
	Long: `Treebind maintains live, bidirectional equivalence between a nested
key-value document and a hierarchical node tree: writes to either side are
reflected on the other, with no feedback between the two directions.

Quick Start:
  treebind watch state.yml        Mirror a YAML document into a live tree
  treebind serve state.yml        Watch plus a WebSocket inspector

Documentation: https://github.com/conneroisu/treebind`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .treebind.yml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	mustBind("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system: an explicit --config
// path wins, then the TREEBIND_ environment, then .treebind.yml in the
// working directory.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".treebind")
		viper.SetConfigType("yml")
	}

	viper.SetEnvPrefix("TREEBIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

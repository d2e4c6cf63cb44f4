// Package commands wires the cobra command tree, modeled on the teacher's
// cli/commands/root.go: the same persistent-flag/viper-binding/config-init
// shape, retargeted at the query compiler's own subcommands (compile,
// watch) instead of the teacher's schema/migrate/generate surface.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relionix/queryc/cmd/queryc/ui"
	"github.com/relionix/queryc/cmd/queryc/version"
	"github.com/relionix/queryc/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "queryc",
	Short: "queryc - relational query compiler",
	Long: `queryc compiles declarative query requests against a schema into a
serializable, dialect-aware SQL dataflow program.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			os.Setenv("NO_COLOR", "1")
		}
		observability.Init(verbose)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			ui.PrintError("failed to show help: %v", err)
			os.Exit(1)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .queryc.yaml in ., $HOME, or $HOME/.config/queryc)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			if verbose {
				fmt.Println(info.FullString())
			} else {
				fmt.Println(info.String())
			}
		},
	}
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(watchCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil && verbose {
		ui.PrintInfo("using config file: %s", viper.ConfigFileUsed())
	}
}

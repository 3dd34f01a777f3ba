// Package cmd implements the saathi command line: run a turn, validate graph
// definitions and inspect a memory journal.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/saathi/config"
)

func Execute() error {
	return newRootCmd().Execute()
}

// cli carries state shared by the subcommands.
type cli struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "saathi",
		Short:         "Saathi: a multi-agent wellbeing companion",
		Long:          "saathi runs emotional support, study planning, community and social turns through composed agents, and inspects their graphs and memory.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ./saathi.yaml or ~/.saathi/saathi.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("provider", "", "model provider: mock, openai, anthropic or gemini")
	flags.String("journal", "", "SQLite memory journal path")
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("model.provider", flags.Lookup("provider"))
	_ = c.v.BindPFlag("memory.journal", flags.Lookup("journal"))

	rootCmd.AddCommand(
		newTurnCmd(c),
		newGraphCmd(c),
		newMemoryCmd(c),
	)

	return rootCmd
}

// config loads the configuration. Flags left unset fall back to the file,
// the environment and the defaults.
func (c *cli) config() (*config.Config, error) {
	return config.Load(c.v, c.configPath)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:           "botherd",
		Short:         "Supervisor for a herd of chat-bot workers sharing SQLite stores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "botherd.toml", "path to TOML config file")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newSeedCmd(flags))
	root.AddCommand(newStatusCmd(flags))
	return root
}

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"marlin/internal/logging"
	"marlin/internal/settings"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var (
	envFileFlag string

	loaded     *settings.Settings
	loadedMeta settings.Metadata
)

var rootCmd = &cobra.Command{
	Use:           "marlin",
	Short:         "Marlin configuration toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := []settings.Option{
			settings.WithLogger(logging.New("settings")),
		}
		if envFileFlag != "" {
			opts = append(opts, settings.WithEnvFile(envFileFlag))
		}

		s, meta, err := settings.Load(opts...)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		configureLogging(s)
		s.OnLogLevelChange(func() { configureLogging(s) })

		if s.Verbose {
			fmt.Fprintln(cmd.ErrOrStderr(), green("verbose mode enabled"))
		}

		loaded = s
		loadedMeta = meta
		return nil
	},
}

func configureLogging(s *settings.Settings) {
	logging.Configure(logging.Config{Level: s.LogLevel})
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "read settings from this env file instead of the default location")
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"marlin/internal/settings"
	"marlin/internal/vectorstore"
)

var showSourcesFlag bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and export the resolved settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved settings with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(loaded)
		if err != nil {
			return fmt.Errorf("render settings: %w", err)
		}
		cmd.Print(string(out))

		if showSourcesFlag {
			sources := loadedMeta.Sources()
			names := make([]string, 0, len(sources))
			for name := range sources {
				names = append(names, name)
			}
			sort.Strings(names)

			cmd.Println()
			cmd.Println(bold("sources (non-default):"))
			for _, name := range names {
				cmd.Printf("  %s: %s\n", name, sources[name])
			}
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the env file location and the resolved home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("home:     %s\n", loaded.Home)
		path := envFileFlag
		if path == "" {
			path = settings.ResolveEnvFilePath(nil, nil)
		}
		cmd.Printf("env file: %s\n", path)
		return nil
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Write every setting as KEY=value lines, secrets in plain text",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(loaded.Home, ".env.export")
		if len(args) == 1 {
			path = args[0]
		}
		if err := loaded.ExportEnvFile(path); err != nil {
			return err
		}
		cmd.Println(green("settings exported to ") + path)
		cmd.Println(yellow("the file contains unmasked secrets; keep it private"))
		return nil
	},
}

var configDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the resolved settings against the environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		problems := 0

		report := func(ok bool, label string, detail string) {
			if ok {
				cmd.Printf("%s %s\n", green("ok"), label)
				return
			}
			problems++
			cmd.Printf("%s %s: %s\n", yellow("warn"), label, detail)
		}

		info, err := os.Stat(loaded.Home)
		report(err == nil && info.IsDir(), "home directory", fmt.Sprintf("%s is not a directory", loaded.Home))

		report(loaded.OpenAIAPIKey.IsSet(), "openai_api_key",
			"not set; OpenAI-backed features will be unavailable")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		err = vectorstore.Heartbeat(ctx, vectorstore.Config{
			ServerHost:     loaded.Chroma.ServerHost,
			ServerHTTPPort: loaded.Chroma.ServerHTTPPort,
		})
		report(err == nil, "chroma server", fmt.Sprint(err))

		if problems == 0 {
			cmd.Println(green(bold("all checks passed")))
		} else {
			cmd.Printf("%s\n", yellow(fmt.Sprintf("%d warning(s)", problems)))
		}
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showSourcesFlag, "sources", false, "also print where each non-default value came from")
	configCmd.AddCommand(configShowCmd, configPathCmd, configExportCmd, configDoctorCmd)
}

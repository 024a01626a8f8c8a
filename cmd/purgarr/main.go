// Package main is the entry point for the purgarr CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/purgarr/purgarr/internal/config"
	"github.com/purgarr/purgarr/internal/core"
	"github.com/spf13/cobra"

	// Compiled-in modules register themselves at init.
	_ "github.com/purgarr/purgarr/internal/bot"
	_ "github.com/purgarr/purgarr/internal/cron"
	_ "github.com/purgarr/purgarr/internal/gateway"
	_ "github.com/purgarr/purgarr/internal/ingest"
	_ "github.com/purgarr/purgarr/internal/media"
	_ "github.com/purgarr/purgarr/internal/schedule"
	_ "github.com/purgarr/purgarr/internal/store"
	_ "github.com/purgarr/purgarr/internal/transport"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Missing .env is fine; explicit env always wins.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "purgarr",
		Short:         "A media-library cleanup companion for Overseerr requests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(versionCmd(), startCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("purgarr %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start purgarr with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			app, ids, err := buildApp(cmd, cfg)
			if err != nil {
				return err
			}
			if err := app.LoadModules(ids); err != nil {
				return err
			}

			return app.Run()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			app, ids, err := buildApp(cc, cfg)
			if err != nil {
				return err
			}
			if err := app.LoadModules(ids); err != nil {
				return err
			}
			defer app.Stop()

			fmt.Printf("Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func buildApp(cmd *cobra.Command, cfg *config.Config) (*core.App, []string, error) {
	level, err := parseLevel(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	appCtx := core.NewAppContext(logger, dataDir())
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	return core.NewApp(appCtx), config.Resolve(cfg), nil
}

func parseLevel(cmd *cobra.Command) (slog.Level, error) {
	name, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/purgarr/purgarr.yaml → ./purgarr.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "purgarr", "purgarr.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "purgarr", "purgarr.yaml"))
	}

	candidates = append(candidates, "purgarr.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// dataDir resolves where session credentials and the database live.
// PURGARR_DATA overrides for container deployments.
func dataDir() string {
	if dir, ok := os.LookupEnv("PURGARR_DATA"); ok {
		return dir
	}
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "purgarr")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "purgarr")
}

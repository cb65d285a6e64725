// ABOUTME: Entry point for the stream-agents coordination server
// ABOUTME: Wires cobra subcommands for serving, config scaffolding and querying a running server

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/stream-agents/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
     _                                                         _
 ___| |_ _ __ ___  __ _ _ __ ___         __ _  __ _  ___ _ __ | |_ ___
/ __| __| '__/ _ \/ _' | '_ ' _ \ _____ / _' |/ _' |/ _ \ '_ \| __/ __|
\__ \ |_| | |  __/ (_| | | | | | |_____| (_| | (_| |  __/ | | | |_\__ \
|___/\__|_|  \___|\__,_|_| |_| |_|      \__,_|\__, |\___|_| |_|\__|___/
                                              |___/
`

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "stream-agents",
		Short:         "Coordinates content-curation and stream-quality agents for a live-stream bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFiles(".env", ".env.local")
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: $"+config.EnvConfigPath+", ./config.yaml, ~/.config/stream-agents/config.yaml)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		initCmd(),
		validateCmd(&configPath),
		statusCmd(&configPath),
		recommendationsCmd(&configPath),
		injectCmd(&configPath),
		coordinateCmd(&configPath),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the explicit path, else the first file Locate finds,
// else the built-in defaults. It returns the path used ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.Locate()
	}
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

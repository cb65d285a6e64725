// ABOUTME: serve command: runs the coordinator, its agents and the HTTP surface until signalled
// ABOUTME: Uses the simulated stream host for scoring, sampling and applying settings

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/stream-agents/internal/api"
	"github.com/2389/stream-agents/internal/bus"
	"github.com/2389/stream-agents/internal/config"
	"github.com/2389/stream-agents/internal/coordinator"
	"github.com/2389/stream-agents/internal/quality"
	"github.com/2389/stream-agents/internal/roster"
	"github.com/2389/stream-agents/internal/simulate"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coordinator and its agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	host := simulate.New(seed, quality.DefaultSettings().Initial, logger)
	coord := newCoordinator(cfg, host, logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if path == "" {
		path = "(built-in defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	if cfg.Server.HTTPAddr != "" {
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	} else {
		fmt.Print("HTTP:      ")
		gray.Println("disabled")
	}
	green.Print("    ▶ ")
	fmt.Printf("Cycle:     every %s, auto-apply above %.2f\n", cfg.Coordination.Interval, cfg.Coordination.AutoApplyThreshold)
	for _, a := range cfg.Agents {
		green.Print("    ▶ ")
		fmt.Printf("Agent:     %s ", a.Name())
		cyan.Print(a.Kind)
		if !a.IsEnabled() {
			yellow.Print(" [disabled]")
		}
		fmt.Println()
	}
	if !cfg.Coordination.Enabled {
		yellow.Println("    ! coordination disabled, no agents will run")
	}
	fmt.Println()

	logger.Info("starting stream-agents",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
		"simulation_seed", seed,
	)

	if err := coord.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing coordinator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.HTTPAddr != "" {
		srv := api.New(coord, logger)
		g.Go(func() error {
			return srv.Run(gctx, cfg.Server.HTTPAddr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// The group context is already cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return coord.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newCoordinator translates the file config into coordinator settings with
// the built-in kinds backed by host.
func newCoordinator(cfg *config.Config, host *simulate.Stream, logger *slog.Logger) *coordinator.Coordinator {
	co := cfg.Coordination
	specs := make([]coordinator.AgentSpec, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		specs = append(specs, coordinator.AgentSpec{
			ID:             a.Name(),
			Kind:           a.Kind,
			Enabled:        a.IsEnabled(),
			UpdateInterval: a.UpdateInterval,
			Settings:       a.Settings,
		})
	}

	return coordinator.New(
		coordinator.Config{
			Enabled:            co.Enabled,
			Interval:           co.Interval,
			AutoApplyThreshold: co.AutoApplyThreshold,
			CollectWindow:      co.CollectWindow,
			Agents:             specs,
		},
		coordinator.Options{
			Factories:     roster.Factories(roster.Host{Scorer: host, Sampler: host, Applier: host}),
			Bus:           bus.New(co.HistoryLimit, logger),
			Logger:        logger,
			RecoveryPause: co.RecoveryPause,
			AppliedLogMax: co.AppliedLogSize,
		},
	)
}

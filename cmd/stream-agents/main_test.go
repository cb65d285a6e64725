// ABOUTME: Tests for config-to-coordinator wiring and the colorized log handler.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/stream-agents/internal/config"
	"github.com/2389/stream-agents/internal/coordinator"
	"github.com/2389/stream-agents/internal/quality"
	"github.com/2389/stream-agents/internal/simulate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewCoordinator_FromDefaultConfig(t *testing.T) {
	cfg := config.Default()
	disabled := false
	cfg.Agents[1].Enabled = &disabled

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	host := simulate.New(7, quality.DefaultSettings().Initial, logger)
	coord := newCoordinator(cfg, host, logger)

	require.NoError(t, coord.Initialize(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, coord.Shutdown(ctx))
	})

	assert.Equal(t, coordinator.StateRunning, coord.State())
	members := coord.Agents()
	require.Len(t, members, 2)
	assert.Equal(t, "content_curation", members[0].ID())
	assert.True(t, members[0].Enabled())
	assert.Equal(t, "stream_quality", members[1].ID())
	assert.False(t, members[1].Enabled())
	assert.Equal(t, 60, members[0].Status().UpdateIntervalSeconds)
	assert.Equal(t, 30, members[1].Status().UpdateIntervalSeconds)
}

func TestLoadConfig_DefaultsWhenNothingFound(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Len(t, cfg.Agents, 2)
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevNoColor := color.Output, color.NoColor
	color.Output, color.NoColor = &buf, true
	t.Cleanup(func() { color.Output, color.NoColor = prevOut, prevNoColor })

	logger := slog.New(&colorHandler{mu: new(sync.Mutex), level: slog.LevelInfo})
	logger.Debug("hidden")
	logger.With("component", "coordinator").WithGroup("cycle").Warn("phase failed", "phase", "apply")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN phase failed")
	assert.Contains(t, out, "component=coordinator")
	assert.Contains(t, out, "cycle.phase=apply")
}

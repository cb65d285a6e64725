// ABOUTME: Tests for the built-in kind registry, including an end-to-end run through the coordinator.

package roster

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/stream-agents/internal/agent"
	"github.com/2389/stream-agents/internal/coordinator"
	"github.com/2389/stream-agents/internal/curation"
	"github.com/2389/stream-agents/internal/quality"
	"github.com/2389/stream-agents/internal/simulate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type congestedSampler struct{}

func (congestedSampler) Sample(context.Context, string) (quality.Metrics, error) {
	return quality.Metrics{BitrateKbps: 2500, FPS: 30, LatencyMS: 1400, BufferHealth: 0.9, CPUPercent: 40}, nil
}

type countingApplier struct {
	mu    sync.Mutex
	calls []quality.StreamSettings
}

func (c *countingApplier) ApplySettings(_ context.Context, _ string, s quality.StreamSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
	return nil
}

func (c *countingApplier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{curation.Kind, quality.Kind}, Kinds())
}

func TestValidateSettings(t *testing.T) {
	require.NoError(t, ValidateSettings(curation.Kind, nil))
	require.NoError(t, ValidateSettings(quality.Kind, map[string]any{"platforms": []any{"youtube"}}))
	assert.Error(t, ValidateSettings(quality.Kind, map[string]any{"apply_burst": -1}))
	assert.ErrorIs(t, ValidateSettings("mystery", nil), coordinator.ErrUnknownAgentKind)
}

func TestFactories_BuildAgents(t *testing.T) {
	host := simulate.New(1, quality.DefaultSettings().Initial, discardLogger())
	f := Factories(Host{Scorer: host, Sampler: host, Applier: host})
	deps := coordinator.Deps{Logger: discardLogger(), Now: time.Now}

	m, err := f[curation.Kind](coordinator.AgentSpec{ID: "curator", Kind: curation.Kind, Enabled: true}, deps)
	require.NoError(t, err)
	assert.IsType(t, &curation.Agent{}, m)
	assert.Equal(t, "curator", m.ID())
	assert.Equal(t, int(agent.DefaultUpdateInterval/time.Second), m.Status().UpdateIntervalSeconds)

	_, err = f[quality.Kind](coordinator.AgentSpec{ID: "q", Kind: quality.Kind, Settings: map[string]any{"history_window": "0s"}}, deps)
	assert.Error(t, err)

	// Missing host collaborators surface as construction errors.
	bare := Factories(Host{})
	_, err = bare[curation.Kind](coordinator.AgentSpec{ID: "c", Kind: curation.Kind}, deps)
	assert.ErrorIs(t, err, curation.ErrNoScorer)
	_, err = bare[quality.Kind](coordinator.AgentSpec{ID: "q", Kind: quality.Kind}, deps)
	assert.ErrorIs(t, err, quality.ErrNoSampler)
}

func TestEndToEnd(t *testing.T) {
	host := simulate.New(7, quality.DefaultSettings().Initial, discardLogger())
	applier := &countingApplier{}

	c := coordinator.New(coordinator.Config{
		Enabled:  true,
		Interval: 20 * time.Millisecond,
		Agents: []coordinator.AgentSpec{
			{
				ID: "content_curation", Kind: curation.Kind, Enabled: true,
				UpdateInterval: 10 * time.Millisecond,
				Settings:       map[string]any{"auto_apply_playlist": true, "peak_hours": []any{}, "insight_chance": 0},
			},
			{
				ID: "stream_quality", Kind: quality.Kind, Enabled: true,
				UpdateInterval: 10 * time.Millisecond,
				Settings:       map[string]any{"min_apply_interval": "0s"},
			},
		},
	}, coordinator.Options{
		Factories: Factories(Host{Scorer: host, Sampler: congestedSampler{}, Applier: applier}),
		Logger:    discardLogger(),
	})
	require.NoError(t, c.Initialize(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, c.Shutdown(ctx))
	})

	// High latency is high severity: the coordinator applies it on receipt.
	require.Eventually(t, func() bool { return applier.count() > 0 }, 3*time.Second, 10*time.Millisecond)

	m, ok := c.Agent("stream_quality")
	require.True(t, ok)
	q := m.(*quality.Agent)
	require.Eventually(t, func() bool {
		return q.CurrentQuality().Settings["primary"].Height == 720
	}, 3*time.Second, 10*time.Millisecond)

	// A playlist request from the host is optimized, auto-applied and confirmed back.
	c.Bus().Publish(agent.NewMessage("host", "content_curation", "optimize_playlist", map[string]any{
		"videos": []any{
			map[string]any{"id": "v1", "title": "Amazing funny moments", "duration": 240},
			map[string]any{"id": "v2", "title": "Learn Go", "duration": 420},
		},
	}, agent.PriorityMedium))

	m, ok = c.Agent("content_curation")
	require.True(t, ok)
	cur := m.(*curation.Agent)
	require.Eventually(t, func() bool { return cur.Insights().PlaylistUpdates == 1 }, 3*time.Second, 10*time.Millisecond)

	st := c.AgentStatus()
	assert.Positive(t, st.AppliedTotal)
	assert.True(t, st.Agents["stream_quality"].Running)
}

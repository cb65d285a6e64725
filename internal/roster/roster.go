// ABOUTME: Built-in agent kind registry: content_curation and stream_quality factories.
// ABOUTME: Each factory decodes the agent's settings block and wires the host collaborators.

package roster

import (
	"fmt"
	"maps"
	"slices"

	"github.com/2389/stream-agents/internal/agent"
	"github.com/2389/stream-agents/internal/coordinator"
	"github.com/2389/stream-agents/internal/curation"
	"github.com/2389/stream-agents/internal/quality"
)

// Host carries the host-side collaborators the built-in agents consume.
type Host struct {
	Scorer  curation.Scorer
	Sampler quality.Sampler
	Applier quality.SettingsApplier
}

// Factories returns a factory per built-in kind.
func Factories(h Host) map[string]coordinator.Factory {
	return map[string]coordinator.Factory{
		curation.Kind: func(spec coordinator.AgentSpec, deps coordinator.Deps) (coordinator.Member, error) {
			settings, err := curation.DecodeSettings(spec.Settings)
			if err != nil {
				return nil, err
			}
			a, err := curation.New(curation.Params{
				Params:   baseParams(spec, deps),
				Settings: settings,
				Scorer:   h.Scorer,
			})
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		quality.Kind: func(spec coordinator.AgentSpec, deps coordinator.Deps) (coordinator.Member, error) {
			settings, err := quality.DecodeSettings(spec.Settings)
			if err != nil {
				return nil, err
			}
			a, err := quality.New(quality.Params{
				Params:   baseParams(spec, deps),
				Settings: settings,
				Sampler:  h.Sampler,
				Applier:  h.Applier,
			})
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

// Kinds lists the built-in kind names, sorted.
func Kinds() []string {
	return slices.Sorted(maps.Keys(Factories(Host{})))
}

// ValidateSettings decodes settings for a built-in kind without building an
// agent. Unknown kinds are reported as coordinator.ErrUnknownAgentKind.
func ValidateSettings(kind string, settings map[string]any) error {
	var err error
	switch kind {
	case curation.Kind:
		_, err = curation.DecodeSettings(settings)
	case quality.Kind:
		_, err = quality.DecodeSettings(settings)
	default:
		return fmt.Errorf("%w: %q", coordinator.ErrUnknownAgentKind, kind)
	}
	return err
}

func baseParams(spec coordinator.AgentSpec, deps coordinator.Deps) agent.Params {
	return agent.Params{
		ID:             spec.ID,
		Kind:           spec.Kind,
		Enabled:        spec.Enabled,
		UpdateInterval: spec.UpdateInterval,
		Bus:            deps.Bus,
		Logger:         deps.Logger,
		Now:            deps.Now,
	}
}

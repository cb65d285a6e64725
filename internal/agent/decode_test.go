package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	type settings struct {
		Threshold float64  `yaml:"threshold"`
		Hours     []int    `yaml:"hours"`
		Name      string   `yaml:"name"`
		Tags      []string `yaml:"tags"`
	}

	out := settings{Name: "default", Threshold: 0.5}
	require.NoError(t, Decode(map[string]any{
		"threshold": 0.9,
		"hours":     []any{19, 20},
	}, &out))
	assert.Equal(t, settings{Threshold: 0.9, Hours: []int{19, 20}, Name: "default"}, out)

	require.NoError(t, Decode(nil, &out))
	assert.Equal(t, 0.9, out.Threshold)

	err := Decode(map[string]any{"hours": "not a list"}, &out)
	assert.Error(t, err)
}

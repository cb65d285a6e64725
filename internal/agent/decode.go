// ABOUTME: Decodes loosely typed maps (config settings blocks, message payloads) into typed structs.

package agent

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Decode copies in into out by round-tripping through YAML, so out's yaml
// tags drive the field mapping. A nil in leaves out untouched.
func Decode(in any, out any) error {
	if in == nil {
		return nil
	}
	raw, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	return nil
}

package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zetxtech/websole/internal/pty"
)

// CommandLine is a program and its arguments. In YAML it may be written as
// a single string, which is split like a shell would, or as a list.
type CommandLine []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CommandLine) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return c.Decode(value.Value)
	case yaml.SequenceNode:
		var args []string
		if err := value.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list", value.Line)
	}
}

// Decode implements envconfig.Decoder.
func (c *CommandLine) Decode(value string) error {
	args, err := pty.SplitCommand(value)
	if err != nil {
		return err
	}
	*c = args
	return nil
}

// Secret is a string that never shows up in logs or dumps.
type Secret string

const masked = "********"

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return masked
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalYAML accepts any scalar, so a numeric password keeps its text.
func (s *Secret) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: webpass must be a scalar", value.Line)
	}
	*s = Secret(value.Value)
	return nil
}

// Value returns the plain text.
func (s Secret) Value() string {
	return string(s)
}

package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either a bare model name or a mapping with
// provider_id/providerId and model.
func (a *AIModelAssignment) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var model string
		if err := node.Decode(&model); err != nil {
			return err
		}
		a.Model = strings.TrimSpace(model)
		return nil
	case yaml.MappingNode:
		var raw struct {
			ProviderID      string `yaml:"provider_id"`
			ProviderIDCamel string `yaml:"providerId"`
			Model           string `yaml:"model"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		a.ProviderID = strings.TrimSpace(raw.ProviderID)
		if a.ProviderID == "" {
			a.ProviderID = strings.TrimSpace(raw.ProviderIDCamel)
		}
		a.Model = strings.TrimSpace(raw.Model)
		return nil
	default:
		return fmt.Errorf("line %d: ai assignment must be a model name or a mapping", node.Line)
	}
}

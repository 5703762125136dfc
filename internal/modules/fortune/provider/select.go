package provider

import (
	"fmt"
	"strings"
	"time"

	appcfg "github.com/tarotlab/fortune-core/internal/config"
)

// Stages holds the provider used for each pipeline stage.
type Stages struct {
	Core   Provider
	Expand Provider
}

// FromConfig resolves the core and expand providers. Both may be the same.
func FromConfig(cfg appcfg.AIConfig) (Stages, error) {
	core, err := build(selectAIProvider(cfg, cfg.Assignment.Core), cfg.Timeout)
	if err != nil {
		return Stages{}, fmt.Errorf("core provider: %w", err)
	}
	expand, err := build(selectAIProvider(cfg, cfg.Assignment.Expand), cfg.Timeout)
	if err != nil {
		return Stages{}, fmt.Errorf("expand provider: %w", err)
	}
	return Stages{Core: core, Expand: expand}, nil
}

func build(p *appcfg.AIProvider, timeout time.Duration) (Provider, error) {
	if p == nil || strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	return New(*p, timeout)
}

// New builds the provider for a single config entry.
func New(p appcfg.AIProvider, timeout time.Duration) (Provider, error) {
	name := p.ID
	if name == "" {
		name = p.Name
	}
	switch appcfg.NormalizeProviderType(p.Type) {
	case "anthropic":
		return NewAnthropic(name, p.APIKey, p.Endpoint, p.DefaultModel, timeout)
	case "openai", "openai-compatible", "openrouter", "":
		return NewOpenAI(name, p.APIKey, p.Endpoint, p.DefaultModel, timeout)
	default:
		return nil, fmt.Errorf("unsupported AI provider type %q", p.Type)
	}
}

// selectAIProvider picks the assigned provider, or the first enabled one.
// An assignment model overrides the provider's default model.
func selectAIProvider(cfg appcfg.AIConfig, assignment *appcfg.AIModelAssignment) *appcfg.AIProvider {
	var providerID string
	var overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(provider appcfg.AIProvider) *appcfg.AIProvider {
		selected := provider
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, provider := range cfg.Providers {
			if !provider.Enabled {
				continue
			}
			if strings.TrimSpace(provider.ID) != providerID {
				continue
			}
			return pick(provider)
		}
	}

	for _, provider := range cfg.Providers {
		if !provider.Enabled {
			continue
		}
		return pick(provider)
	}

	return nil
}

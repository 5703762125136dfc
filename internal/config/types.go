package config

import "time"

// QuotaConfig selects the ledger backend and the zone days are counted in.
type QuotaConfig struct {
	Timezone string `yaml:"timezone"`
	Driver   string `yaml:"driver"` // database | redis
}

// CacheConfig selects the core reading cache backend.
type CacheConfig struct {
	Driver   string        `yaml:"driver"` // memory | redis
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

type AIConfig struct {
	Providers  []AIProvider       `yaml:"providers"`
	Assignment AIAssignmentConfig `yaml:"assignment"`
	Timeout    time.Duration      `yaml:"timeout"`
	Gemini     GeminiConfig       `yaml:"gemini"`
}

// AIAssignmentConfig pins a provider/model per pipeline stage.
type AIAssignmentConfig struct {
	Core   *AIModelAssignment `yaml:"core,omitempty"`
	Expand *AIModelAssignment `yaml:"expand,omitempty"`
}

type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // OpenAI | OpenAI-Compatible | Anthropic
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// GeminiConfig enables the archmage cross-check when APIKey is set.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

func (g GeminiConfig) Enabled() bool { return g.APIKey != "" }

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // OTLP/HTTP; stdout when empty
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

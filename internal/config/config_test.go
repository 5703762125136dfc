package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, "empty.yml", nil)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.True(t, cfg.IsDev())
	dsn, err := mysql.ParseDSN(cfg.DSN)
	require.NoError(t, err)
	assert.Equal(t, "root", dsn.User)
	assert.Equal(t, "password", dsn.Passwd)
	assert.Equal(t, "127.0.0.1:3306", dsn.Addr)
	assert.Equal(t, "fortune", dsn.DBName)
	assert.True(t, dsn.ParseTime)
	assert.Equal(t, time.Local, dsn.Loc)
	assert.Contains(t, cfg.DSN, "charset=utf8mb4")
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, QuotaConfig{Timezone: "Asia/Seoul", Driver: DriverDatabase}, cfg.Quota)
	assert.Equal(t, CacheConfig{Driver: DriverMemory, TTL: 10 * time.Minute, Capacity: 100}, cfg.Cache)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Gemini.Model)
	assert.False(t, cfg.AI.Gemini.Enabled())
	assert.False(t, cfg.TestMode)
}

func TestParseFullFile(t *testing.T) {
	content := []byte(`
port: 9000
env: production
database:
  host: db.internal
  name: readings
redis_url: cache.internal:6380/2
allowed_origins: [" https://app.example.com ", ""]
test_mode: true
admin_emails: ["Root@Example.com"]
tz: "+09:00"
quota:
  driver: redis
cache:
  driver: redis
  ttl: 5m
  capacity: 50
ai:
  timeout: 30s
  providers:
    - type: OpenAI_Compatible
      api_key: sk-1
      endpoint: https://llm.example.com
      default_model: qwen
      enabled: true
  assignment:
    core: gpt-4o-mini
    expand:
      providerId: openai-compatible
      model: qwen-long
tracing:
  enabled: true
  sample_ratio: 0.25
`)
	cfg, err := Parse(content, "config.yml", nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Contains(t, cfg.DSN, "@tcp(db.internal:3306)/readings?")
	assert.Equal(t, "redis://cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, []string{"root@example.com"}, cfg.AdminEmails)
	assert.Equal(t, QuotaConfig{Timezone: "+09:00", Driver: DriverRedis}, cfg.Quota)
	assert.Equal(t, CacheConfig{Driver: DriverRedis, TTL: 5 * time.Minute, Capacity: 50}, cfg.Cache)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)

	require.Len(t, cfg.AI.Providers, 1)
	assert.Equal(t, "openai-compatible", cfg.AI.Providers[0].ID)
	assert.Equal(t, &AIModelAssignment{Model: "gpt-4o-mini"}, cfg.AI.Assignment.Core)
	assert.Equal(t, &AIModelAssignment{ProviderID: "openai-compatible", Model: "qwen-long"}, cfg.AI.Assignment.Expand)

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, defaultServiceName, cfg.Tracing.ServiceName)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "prot: 1\n",
		"bad port":       "port: 70000\n",
		"bad driver":     "quota:\n  driver: mongo\n",
		"bad cache ttl":  "cache:\n  ttl: soon\n",
		"bad ai timeout": "ai:\n  timeout: -1s\n",
		"bad ratio":      "tracing:\n  sample_ratio: 2\n",
		"bad assignment": "ai:\n  assignment:\n    core: [a, b]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content), "config.yml", nil)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	content := []byte(`
ai:
  providers:
    - id: main
      type: openai
      enabled: true
`)
	cfg, err := Parse(content, "config.yml", env(map[string]string{
		"OPENAI_API_KEY":    "sk-env",
		"ANTHROPIC_API_KEY": "ak-env",
		"GEMINI_API_KEY":    "gm-env",
		"TEST_MODE":         "true",
		"JWT_SECRET":        "s3cret",
	}))
	require.NoError(t, err)

	require.Len(t, cfg.AI.Providers, 2)
	assert.Equal(t, "sk-env", cfg.AI.Providers[0].APIKey)
	assert.Equal(t, "anthropic", cfg.AI.Providers[1].Type)
	assert.Equal(t, "ak-env", cfg.AI.Providers[1].APIKey)
	assert.True(t, cfg.AI.Providers[1].Enabled)
	assert.True(t, cfg.AI.Gemini.Enabled())
	assert.True(t, cfg.TestMode)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9100\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

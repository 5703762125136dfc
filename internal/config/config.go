package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port            int                   `yaml:"port"`
	DSN             string                `yaml:"dsn"` // MySQL DSN
	RedisURL        string                `yaml:"redis_url"`
	Database        DatabaseRuntimeConfig `yaml:"database"`
	Redis           RedisRuntimeConfig    `yaml:"redis"`
	Env             string                `yaml:"env"` // "development" | "production"
	Paths           RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins  []string              `yaml:"allowed_origins"`
	JWTSecret       string                `yaml:"jwt_secret"`
	TestMode        bool                  `yaml:"test_mode"`
	PaymentsEnabled bool                  `yaml:"payments_enabled"`
	AdminEmails     []string              `yaml:"admin_emails"`
	Quota           QuotaConfig           `yaml:"quota"`
	Cache           CacheConfig           `yaml:"cache"`
	AI              AIConfig              `yaml:"ai"`
	Tracing         TracingConfig         `yaml:"tracing"`
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawAppConfig struct {
	Port               int               `yaml:"port"`
	DSN                string            `yaml:"dsn"`
	DatabaseURL        string            `yaml:"database_url"`
	RedisURL           string            `yaml:"redis_url"`
	Database           rawDatabaseConfig `yaml:"database"`
	Redis              rawRedisConfig    `yaml:"redis"`
	Env                string            `yaml:"env"`
	NodeEnv            string            `yaml:"node_env"`
	Paths              rawPathsConfig    `yaml:"paths"`
	LogDir             string            `yaml:"log_dir"`
	AllowedOrigins     []string          `yaml:"allowed_origins"`
	CORSAllowedOrigins []string          `yaml:"cors_allowed_origins"`
	JWTSecret          string            `yaml:"jwt_secret"`
	TestMode           *bool             `yaml:"test_mode"`
	PaymentsEnabled    *bool             `yaml:"payments_enabled"`
	AdminEmails        []string          `yaml:"admin_emails"`
	Timezone           string            `yaml:"timezone"`
	TZ                 string            `yaml:"tz"`
	Quota              rawQuotaConfig    `yaml:"quota"`
	Cache              rawCacheConfig    `yaml:"cache"`
	AI                 rawAIConfig       `yaml:"ai"`
	Tracing            rawTracingConfig  `yaml:"tracing"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawQuotaConfig struct {
	Timezone string `yaml:"timezone"`
	Driver   string `yaml:"driver"`
}

type rawCacheConfig struct {
	Driver   string `yaml:"driver"`
	TTL      string `yaml:"ttl"`
	Capacity int    `yaml:"capacity"`
}

type rawAIConfig struct {
	Providers  []AIProvider       `yaml:"providers"`
	Assignment AIAssignmentConfig `yaml:"assignment"`
	Timeout    string             `yaml:"timeout"`
	Gemini     GeminiConfig       `yaml:"gemini"`
}

type rawTracingConfig struct {
	Enabled     *bool    `yaml:"enabled"`
	ServiceName string   `yaml:"service_name"`
	Endpoint    string   `yaml:"endpoint"`
	Insecure    *bool    `yaml:"insecure"`
	SampleRatio *float64 `yaml:"sample_ratio"`
}

// Load reads the YAML file at configPath and applies environment overrides.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	return Parse(content, path, os.Getenv)
}

// Parse decodes config content. source only labels error messages.
func Parse(content []byte, source string, getenv func(string) string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil && !isEmptyDocument(err) {
		return nil, fmt.Errorf("parse config file %q: %w", source, err)
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("config file %q: %w", source, err)
	}
	if getenv != nil {
		applyEnvOverrides(&cfg, getenv)
	}
	if err := validate(&cfg, source); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isEmptyDocument(err error) bool {
	return errors.Is(err, io.EOF)
}

func validate(cfg *AppConfig, path string) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	switch cfg.Quota.Driver {
	case DriverDatabase, DriverRedis:
	default:
		return fmt.Errorf("invalid quota.driver %q in %q, expected database or redis", cfg.Quota.Driver, path)
	}
	switch cfg.Cache.Driver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("invalid cache.driver %q in %q, expected memory or redis", cfg.Cache.Driver, path)
	}
	if cfg.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache.capacity %d in %q, expected >= 1", cfg.Cache.Capacity, path)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("invalid tracing.sample_ratio %v in %q, expected 0-1", cfg.Tracing.SampleRatio, path)
	}
	return nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Quota: QuotaConfig{Timezone: defaultQuotaTimezone, Driver: DriverDatabase},
		Cache: CacheConfig{Driver: DriverMemory, TTL: defaultCacheTTL, Capacity: defaultCacheCapacity},
		AI: AIConfig{
			Timeout: defaultAITimeout,
			Gemini:  GeminiConfig{Model: defaultGeminiModel},
		},
		Tracing: TracingConfig{ServiceName: defaultServiceName, SampleRatio: defaultSampleRatio},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if raw.TestMode != nil {
		cfg.TestMode = *raw.TestMode
	}
	if raw.PaymentsEnabled != nil {
		cfg.PaymentsEnabled = *raw.PaymentsEnabled
	}
	if raw.AdminEmails != nil {
		cfg.AdminEmails = normalizeEmails(raw.AdminEmails)
	}

	quota := cfg.Quota
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		quota.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		quota.Timezone = v
	}
	if v := strings.TrimSpace(raw.Quota.Timezone); v != "" {
		quota.Timezone = v
	}
	if v := strings.TrimSpace(raw.Quota.Driver); v != "" {
		quota.Driver = v
	}
	cfg.Quota = normalizeQuotaConfig(quota)

	cache := cfg.Cache
	if v := strings.TrimSpace(raw.Cache.Driver); v != "" {
		cache.Driver = v
	}
	if v := strings.TrimSpace(raw.Cache.TTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("invalid cache.ttl %q, expected a positive duration such as 10m", v)
		}
		cache.TTL = ttl
	}
	if raw.Cache.Capacity != 0 {
		cache.Capacity = raw.Cache.Capacity
	}
	cfg.Cache = normalizeCacheConfig(cache)

	ai := cfg.AI
	if raw.AI.Providers != nil {
		ai.Providers = raw.AI.Providers
	}
	if raw.AI.Assignment.Core != nil {
		ai.Assignment.Core = raw.AI.Assignment.Core
	}
	if raw.AI.Assignment.Expand != nil {
		ai.Assignment.Expand = raw.AI.Assignment.Expand
	}
	if v := strings.TrimSpace(raw.AI.Timeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil || timeout <= 0 {
			return fmt.Errorf("invalid ai.timeout %q, expected a positive duration such as 60s", v)
		}
		ai.Timeout = timeout
	}
	if v := strings.TrimSpace(raw.AI.Gemini.APIKey); v != "" {
		ai.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(raw.AI.Gemini.Model); v != "" {
		ai.Gemini.Model = v
	}
	cfg.AI = normalizeAIConfig(ai)

	tracing := cfg.Tracing
	if raw.Tracing.Enabled != nil {
		tracing.Enabled = *raw.Tracing.Enabled
	}
	if v := strings.TrimSpace(raw.Tracing.ServiceName); v != "" {
		tracing.ServiceName = v
	}
	if v := strings.TrimSpace(raw.Tracing.Endpoint); v != "" {
		tracing.Endpoint = v
	}
	if raw.Tracing.Insecure != nil {
		tracing.Insecure = *raw.Tracing.Insecure
	}
	if raw.Tracing.SampleRatio != nil {
		tracing.SampleRatio = *raw.Tracing.SampleRatio
	}
	cfg.Tracing = tracing

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Env = normalizeEnv(cfg.Env)
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}

	return normalizeRedisConfig(cfg)
}

// applyEnvOverrides lets deployments keep secrets out of the config file.
func applyEnvOverrides(cfg *AppConfig, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("OPENAI_API_KEY")); v != "" {
		cfg.AI.Providers = withProviderKey(cfg.AI.Providers, "openai", v)
	}
	if v := strings.TrimSpace(getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.AI.Providers = withProviderKey(cfg.AI.Providers, "anthropic", v)
	}
	if v := strings.TrimSpace(getenv("GEMINI_API_KEY")); v != "" {
		cfg.AI.Gemini.APIKey = v
	}
	if v := strings.TrimSpace(getenv("TEST_MODE")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.TestMode = enabled
		}
	}
	if v := strings.TrimSpace(getenv("JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
}

// withProviderKey fills the key of every provider of the given type that has
// none, or adds an enabled provider of that type when none is configured.
func withProviderKey(providers []AIProvider, providerType, key string) []AIProvider {
	found := false
	out := make([]AIProvider, len(providers))
	copy(out, providers)
	for i := range out {
		if NormalizeProviderType(out[i].Type) != providerType {
			continue
		}
		found = true
		if out[i].APIKey == "" {
			out[i].APIKey = key
		}
	}
	if !found {
		out = append(out, AIProvider{ID: providerType, Name: providerType, Type: providerType, APIKey: key, Enabled: true})
	}
	return out
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

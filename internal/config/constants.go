package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 8787
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "fortune"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultQuotaTimezone = "Asia/Seoul"
	defaultCacheTTL      = 10 * time.Minute
	defaultCacheCapacity = 100
	defaultAITimeout     = 60 * time.Second
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultSampleRatio   = 1.0
	defaultServiceName   = "fortune-core"
)

// Backend drivers for the swappable stores.
const (
	DriverDatabase = "database"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Rebalance / backtest engine defaults
	Engine EngineConfig

	// External NAV feed
	NavFeed NavFeedConfig

	// Scheduler
	Schedule ScheduleConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// EngineConfig holds defaults applied when a request leaves a knob unset
type EngineConfig struct {
	MinDeviation      float64       // 리밸런싱 최소 편차 (0.005 = 0.5%p)
	LotSize           float64       // 최소 거래 단위 (펀드 좌수)
	FeeRate           float64       // 기본 수수료율
	Benchmark         string        // 기본 벤치마크 코드
	LockTimeout       time.Duration // 포트폴리오 락 대기 시간
	LockTTL           time.Duration // 분산 락 만료
	BacktestCacheTTL  time.Duration
	BacktestRateLimit int // per client per minute
}

// NavFeedConfig holds the NAV history feed settings
type NavFeedConfig struct {
	BaseURL   string
	RateLimit int // requests per second
}

// ScheduleConfig holds cron expressions (with seconds)
type ScheduleConfig struct {
	NavSync      string
	BatchRefresh string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Engine: EngineConfig{
			MinDeviation:      getEnvAsFloat("REBALANCE_MIN_DEVIATION", 0.005),
			LotSize:           getEnvAsFloat("REBALANCE_LOT_SIZE", 0.01),
			FeeRate:           getEnvAsFloat("DEFAULT_FEE_RATE", 0.001),
			Benchmark:         getEnv("DEFAULT_BENCHMARK", "000300"),
			LockTimeout:       getEnvAsDuration("LOCK_TIMEOUT", "5s"),
			LockTTL:           getEnvAsDuration("LOCK_TTL", "30s"),
			BacktestCacheTTL:  getEnvAsDuration("BACKTEST_CACHE_TTL", "10m"),
			BacktestRateLimit: getEnvAsInt("BACKTEST_RATE_LIMIT", 30),
		},

		NavFeed: NavFeedConfig{
			BaseURL:   getEnv("NAV_FEED_BASE_URL", "http://localhost:8900"),
			RateLimit: getEnvAsInt("NAV_FEED_RATE_LIMIT", 5),
		},

		Schedule: ScheduleConfig{
			NavSync:      getEnv("SCHEDULE_NAV_SYNC", "0 30 21 * * 1-5"),
			BatchRefresh: getEnv("SCHEDULE_BATCH_REFRESH", "0 0 22 * * 1-5"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Engine.FeeRate < 0 || c.Engine.FeeRate > 0.02 {
		return fmt.Errorf("DEFAULT_FEE_RATE must be within [0, 0.02], got %v", c.Engine.FeeRate)
	}

	if c.Engine.MinDeviation < 0 || c.Engine.MinDeviation > 0.2 {
		return fmt.Errorf("REBALANCE_MIN_DEVIATION must be within [0, 0.2], got %v", c.Engine.MinDeviation)
	}

	if c.Engine.LotSize <= 0 {
		return fmt.Errorf("REBALANCE_LOT_SIZE must be positive, got %v", c.Engine.LotSize)
	}

	return nil
}

// RedisAddr returns host:port for the redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

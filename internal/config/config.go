package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process-level settings read from the environment.
// Postback behaviour (target URL, parameter names, method) lives in the settings table.
type Config struct {
	AppName     string
	Environment string
	GinMode     string
	Port        string
	GRPCPort    string

	LogLevel  string
	LogFormat string

	DBDriver          string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int

	GeoAPIURL       string
	GeoTimeout      time.Duration
	GeoCacheTTL     time.Duration
	GeoCacheEnabled bool

	PostbackInsecureSkipVerify bool

	RetentionDays    int
	RetentionCron    string
	PendingSweepCron string
	PendingStaleFor  time.Duration

	WorkerConcurrency int
}

// LoadEnv loads a .env file from the working directory or its parent.
func LoadEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
	log.Println("No .env file found, using system environment variables")
}

// Load reads configuration from the environment with defaults applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "s2s-tracker")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("GIN_MODE", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_NAME", "s2s_tracker")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "s2s_tracker.db")
	v.SetDefault("DB_MAX_IDLE_CONN", 10)
	v.SetDefault("DB_MAX_OPEN_CONN", 50)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GEO_API_URL", "https://ipapi.co")
	v.SetDefault("GEO_TIMEOUT", "3s")
	v.SetDefault("GEO_CACHE_TTL", "24h")
	v.SetDefault("GEO_CACHE_ENABLED", true)

	v.SetDefault("POSTBACK_INSECURE_SKIP_VERIFY", false)

	v.SetDefault("RETENTION_DAYS", 365)
	v.SetDefault("RETENTION_CRON", "0 0 * * *")
	v.SetDefault("PENDING_SWEEP_CRON", "*/15 * * * *")
	v.SetDefault("PENDING_STALE_FOR", "10m")

	v.SetDefault("WORKER_CONCURRENCY", 10)

	cfg := &Config{
		AppName:     v.GetString("APP_NAME"),
		Environment: v.GetString("APP_ENV"),
		GinMode:     v.GetString("GIN_MODE"),
		Port:        v.GetString("PORT"),
		GRPCPort:    v.GetString("GRPC_PORT"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		DBDriver:          strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:            v.GetString("DB_HOST"),
		DBPort:            v.GetString("DB_PORT"),
		DBName:            v.GetString("DB_NAME"),
		DBUser:            v.GetString("DB_USER"),
		DBPassword:        v.GetString("DB_PASSWORD"),
		DBSSLMode:         v.GetString("DB_SSLMODE"),
		DBPath:            v.GetString("DB_PATH"),
		DBMaxIdleConn:     v.GetInt("DB_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DB_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),

		RedisURL:      v.GetString("REDIS_URL"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		GeoAPIURL:       strings.TrimRight(v.GetString("GEO_API_URL"), "/"),
		GeoTimeout:      v.GetDuration("GEO_TIMEOUT"),
		GeoCacheTTL:     v.GetDuration("GEO_CACHE_TTL"),
		GeoCacheEnabled: v.GetBool("GEO_CACHE_ENABLED"),

		PostbackInsecureSkipVerify: v.GetBool("POSTBACK_INSECURE_SKIP_VERIFY"),

		RetentionDays:    v.GetInt("RETENTION_DAYS"),
		RetentionCron:    v.GetString("RETENTION_CRON"),
		PendingSweepCron: v.GetString("PENDING_SWEEP_CRON"),
		PendingStaleFor:  v.GetDuration("PENDING_STALE_FOR"),

		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 1
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Aggregate and ghost log backends.
const (
	BackendSQL        = "sql"
	BackendRedis      = "redis"
	BackendClickHouse = "clickhouse"
)

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		Driver string
		DSN    string
	}
	Aggregate struct {
		Backend string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Ghosts struct {
		Backend string
	}
	ClickHouse struct {
		Addr     string
		Database string
		Username string
		Password string
	}
	Ingest struct {
		Workers int
		Queue   int
	}
	LogMode string
}

// Load reads config from environment (JOE_STATS prefix), an optional .env file,
// and an optional joe-stats.yaml in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional .env file

	v := viper.New()
	v.SetEnvPrefix("JOE_STATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("joe-stats")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional config file

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("aggregate.backend", BackendSQL)
	v.SetDefault("redis.db", 0)
	v.SetDefault("ghosts.backend", BackendSQL)
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("ingest.workers", 8)
	v.SetDefault("ingest.queue", 256)
	v.SetDefault("log.mode", "development")

	cfg := &Config{}
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.Aggregate.Backend = strings.ToLower(v.GetString("aggregate.backend"))
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Ghosts.Backend = strings.ToLower(v.GetString("ghosts.backend"))
	cfg.ClickHouse.Addr = v.GetString("clickhouse.addr")
	cfg.ClickHouse.Database = v.GetString("clickhouse.database")
	cfg.ClickHouse.Username = v.GetString("clickhouse.username")
	cfg.ClickHouse.Password = v.GetString("clickhouse.password")
	cfg.Ingest.Workers = v.GetInt("ingest.workers")
	cfg.Ingest.Queue = v.GetInt("ingest.queue")
	cfg.LogMode = v.GetString("log.mode")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and backend selections.
func (c *Config) Validate() error {
	if c.DB.Driver == "" {
		return fmt.Errorf("JOE_STATS_DB_DRIVER is required (sqlite3, mysql, postgres)")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("JOE_STATS_DB_DSN is required")
	}

	switch c.Aggregate.Backend {
	case BackendSQL:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("JOE_STATS_REDIS_ADDR is required when JOE_STATS_AGGREGATE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid JOE_STATS_AGGREGATE_BACKEND %q: must be sql or redis", c.Aggregate.Backend)
	}

	switch c.Ghosts.Backend {
	case BackendSQL:
	case BackendClickHouse:
		if c.ClickHouse.Addr == "" {
			return fmt.Errorf("JOE_STATS_CLICKHOUSE_ADDR is required when JOE_STATS_GHOSTS_BACKEND=clickhouse")
		}
	default:
		return fmt.Errorf("invalid JOE_STATS_GHOSTS_BACKEND %q: must be sql or clickhouse", c.Ghosts.Backend)
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("JOE_STATS_INGEST_WORKERS must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.Queue < 0 {
		return fmt.Errorf("JOE_STATS_INGEST_QUEUE must not be negative, got %d", c.Ingest.Queue)
	}
	return nil
}

package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9100"`

	// Storage selects the gateway: mysql or memory.
	Storage  string `envconfig:"STORAGE" default:"mysql"`
	MySQLDSN string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/rently?parseTime=true&charset=utf8mb4,utf8&loc=UTC"`
	Migrate  bool   `envconfig:"MIGRATE" default:"true"`

	// Redis is optional; an empty address disables the cache and the relay.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPass     string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	EventsChannel string `envconfig:"REDIS_EVENTS_CHANNEL" default:"rently.events"`
	CacheTTLSecs  int    `envconfig:"CACHE_TTL_SECONDS" default:"900"`

	StampEveryClose bool    `envconfig:"TICKET_STAMP_EVERY_CLOSE" default:"false"`
	RateLimitRPS    float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst  int     `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// Listing sync (cmd/sync)
	ListingsBase string   `envconfig:"LISTINGS_BASE_URL" default:"http://localhost:8090/v1"`
	ListingsKey  string   `envconfig:"LISTINGS_API_KEY"`
	ListingsRPS  int      `envconfig:"LISTINGS_RPS" default:"5"`
	SyncIDs      []string `envconfig:"SYNC_PROPERTY_IDS"`
	SyncWorkers  int      `envconfig:"SYNC_WORKERS" default:"8"`
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSecs) * time.Second }

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.Storage = strings.ToLower(c.Storage)
	switch c.Storage {
	case "mysql", "memory":
	default:
		return Config{}, fmt.Errorf("config: STORAGE must be mysql or memory, got %q", c.Storage)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return c, nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/nmxmxh/ovasabi-live/internal/service/dispatch"
)

// Config is the process configuration, read from the environment.
type Config struct {
	AppEnv         string `env:"APP_ENV" envDefault:"development"`
	AppName        string `env:"APP_NAME" envDefault:"ovasabi-live"`
	AppVersion     string `env:"APP_VERSION" envDefault:"dev"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCHealthAddr string `env:"GRPC_HEALTH_ADDR" envDefault:":8081"`

	// DatabaseURL selects the Postgres store; empty keeps everything in memory.
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`

	RedisHost         string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	RedisMinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	RedisMaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	RedisConnectWait  time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"15s"`

	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGiftTopic    string   `env:"KAFKA_GIFT_TOPIC" envDefault:"engage.gifts"`
	KafkaSettledTopic string   `env:"KAFKA_SETTLED_TOPIC" envDefault:"engage.gifts.settled"`
	KafkaGroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"engage-settlement"`

	ExpirySweepInterval   time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"5s"`
	ExpirySweepLimit      int           `env:"EXPIRY_SWEEP_LIMIT" envDefault:"500"`
	DispatchSweepInterval time.Duration `env:"DISPATCH_SWEEP_INTERVAL" envDefault:"60s"`
	DispatchMaxAge        time.Duration `env:"DISPATCH_MAX_AGE" envDefault:"60s"`
	DefaultActivityLevel  string        `env:"DEFAULT_ACTIVITY_LEVEL" envDefault:"medium"`

	// BroadcastRelay fans room events out through Redis Pub/Sub; disable it
	// for a single instance to publish straight into the local registry.
	BroadcastRelay bool `env:"BROADCAST_RELAY" envDefault:"true"`

	WSAllowedOrigins string `env:"WS_ALLOWED_ORIGINS"`
	WSSendBuffer     int    `env:"WS_SEND_BUFFER" envDefault:"32"`

	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing file is fine; real env vars still win
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that defaults cannot fix.
func (c *Config) Validate() error {
	var errs []error
	if c.RedisHost == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if _, err := dispatch.ParseLevel(c.DefaultActivityLevel); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_ACTIVITY_LEVEL: %w", err))
	}
	if c.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("EXPIRY_SWEEP_INTERVAL must be positive"))
	}
	if c.DispatchSweepInterval <= 0 {
		errs = append(errs, errors.New("DISPATCH_SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// KafkaEnabled reports whether gift settlement messages are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

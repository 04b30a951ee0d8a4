// Package config reads process settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/kpm34/cfbdraft/go/internal/dbconfig"
)

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
}

// StoreConfig selects the draft state store backend.
type StoreConfig struct {
	Backend  string        `env:"STORE_BACKEND" envDefault:"postgres"`
	BoltPath string        `env:"BOLT_PATH" envDefault:"cfbdraft.db"`
	Timeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	Migrate  bool          `env:"STORE_MIGRATE" envDefault:"true"`
	DB       dbconfig.Config
}

type SchedulerConfig struct {
	Parallelism          int           `env:"SCHEDULER_PARALLELISM" envDefault:"10"`
	BatchSize            int           `env:"SCHEDULER_BATCH_SIZE" envDefault:"500"`
	TickInterval         time.Duration `env:"SCHEDULER_TICK_INTERVAL" envDefault:"1s"`
	RetryMaxTries        uint          `env:"SCHEDULER_RETRY_MAX_TRIES" envDefault:"4"`
	RetryInitialInterval time.Duration `env:"SCHEDULER_RETRY_INITIAL_INTERVAL" envDefault:"50ms"`
	RetryMaxInterval     time.Duration `env:"SCHEDULER_RETRY_MAX_INTERVAL" envDefault:"1s"`
}

type NATSConfig struct {
	URL           string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Stream        string        `env:"NATS_STREAM" envDefault:"DRAFT_EVENTS"`
	SubjectPrefix string        `env:"NATS_SUBJECT_PREFIX" envDefault:"draft.events"`
	MaxAge        time.Duration `env:"NATS_STREAM_MAX_AGE" envDefault:"168h"`
	Replicas      int           `env:"NATS_STREAM_REPLICAS" envDefault:"1"`
	// Disabled makes publishers log events instead of sending them.
	Disabled bool `env:"NATS_DISABLED" envDefault:"false"`
}

// ServerConfig is the API process: connect services, cron routes and an
// optional in-process scheduler.
type ServerConfig struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	CronSecret     string   `env:"CRON_SECRET"`
	// RunScheduler runs the sweep loop inside the API process.
	RunScheduler bool `env:"RUN_SCHEDULER" envDefault:"false"`
	// RunRelay publishes the outbox from the API process. Required for the
	// memory and bolt backends, which no other process can open.
	RunRelay bool `env:"RUN_RELAY" envDefault:"false"`

	Log       LogConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	Relay     RelayConfig
	NATS      NATSConfig
}

type OrchestratorConfig struct {
	HealthAddr string `env:"ORCHESTRATOR_HEALTH_ADDR" envDefault:":8082"`
	CronSecret string `env:"CRON_SECRET"`

	Log       LogConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	NATS      NATSConfig
}

// RelayConfig tunes the outbox worker.
type RelayConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	MaxRetries   int           `env:"OUTBOX_MAX_RETRIES" envDefault:"3"`
	RetryDelay   time.Duration `env:"OUTBOX_RETRY_DELAY" envDefault:"1s"`
}

type OutboxConfig struct {
	HealthAddr       string        `env:"OUTBOX_HEALTH_ADDR" envDefault:":8081"`
	NotifyChannel    string        `env:"OUTBOX_NOTIFY_CHANNEL" envDefault:"draft_outbox_events"`
	FallbackInterval time.Duration `env:"OUTBOX_FALLBACK_INTERVAL" envDefault:"30s"`
	StuckThreshold   time.Duration `env:"OUTBOX_STUCK_THRESHOLD" envDefault:"5m"`

	Relay RelayConfig
	Log   LogConfig
	Store StoreConfig
	NATS  NATSConfig
}

type GatewayConfig struct {
	HTTPAddr       string        `env:"GATEWAY_ADDR" envDefault:":8090"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	DraftAPIURL    string        `env:"DRAFT_API_URL" envDefault:"http://localhost:8080"`
	PingInterval   time.Duration `env:"GATEWAY_PING_INTERVAL" envDefault:"30s"`

	Log  LogConfig
	NATS NATSConfig
}

// LoadDotEnv loads .env if it exists.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load parses T from the environment.
func Load[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

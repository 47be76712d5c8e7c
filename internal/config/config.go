package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr       string `env:"PRIORITYD_ADDR" envDefault:":8080"`
	AppVersion string `env:"PRIORITYD_VERSION" envDefault:"dev"`

	WebhookSecret     string `env:"APPROVAL_WEBHOOK_SECRET"`
	WebhookSecretFile string `env:"APPROVAL_WEBHOOK_SECRET_FILE"`
	MaxBodyBytes      int64  `env:"PRIORITYD_MAX_BODY_BYTES" envDefault:"1048576"`

	JobStoreDSN        string `env:"JOB_STORE_DSN" envDefault:"memory://"`
	JobStoreServiceKey string `env:"JOB_STORE_SERVICE_KEY"`

	OptimizerURL string `env:"OPTIMIZER_URL"`

	MapsAPIKey string `env:"GOOGLE_MAPS_API_KEY"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	UpdatesChannel string `env:"UPDATES_CHANNEL" envDefault:"mystery:updates"`

	ResolveWindow     time.Duration `env:"RESOLVE_THROTTLE_WINDOW" envDefault:"60s"`
	HeartbeatInterval time.Duration `env:"STREAM_HEARTBEAT_INTERVAL" envDefault:"15s"`

	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	WorkerBatchSize    int           `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	WorkerMaxAttempts  int           `env:"WORKER_MAX_ATTEMPTS" envDefault:"5"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

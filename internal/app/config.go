package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	log "github.com/sirupsen/logrus"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска; значения читаются из переменных окружения MARKETPLACE_*.
type Config struct {
	GRPCAddr    string `env:"MARKETPLACE_GRPC_ADDR" envDefault:":50051"`
	MetricsAddr string `env:"MARKETPLACE_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"MARKETPLACE_LOG_LEVEL" envDefault:"info"`

	StorageDriver       string `env:"MARKETPLACE_STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN         string `env:"MARKETPLACE_POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"MARKETPLACE_POSTGRES_AUTO_MIGRATE" envDefault:"true"`

	RedisAddr string        `env:"MARKETPLACE_REDIS_ADDR"`
	CacheTTL  time.Duration `env:"MARKETPLACE_CACHE_TTL" envDefault:"10m"`

	KafkaBrokers []string `env:"MARKETPLACE_KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID string   `env:"MARKETPLACE_KAFKA_GROUP_ID" envDefault:"marketplace-core"`

	OutboxPollInterval time.Duration `env:"MARKETPLACE_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"MARKETPLACE_OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts  int           `env:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" envDefault:"3"`
	OutboxMaxLag       time.Duration `env:"MARKETPLACE_OUTBOX_MAX_LAG" envDefault:"5m"`
	OutboxRetention    time.Duration `env:"MARKETPLACE_OUTBOX_RETENTION" envDefault:"72h"`
	OutboxCleanupEvery time.Duration `env:"MARKETPLACE_OUTBOX_CLEANUP_INTERVAL" envDefault:"10m"`

	RetryMaxAttempts int `env:"MARKETPLACE_RETRY_MAX_ATTEMPTS" envDefault:"5"`

	TracingEnabled bool   `env:"MARKETPLACE_TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint   string `env:"MARKETPLACE_OTLP_ENDPOINT" envDefault:"localhost:4318"`
}

// DefaultConfig возвращает настройки по умолчанию без чтения окружения.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheTTL:            10 * time.Minute,
		KafkaGroupID:        "marketplace-core",
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxMaxLag:        5 * time.Minute,
		OutboxRetention:     72 * time.Hour,
		OutboxCleanupEvery:  10 * time.Minute,
		RetryMaxAttempts:    5,
		OTLPEndpoint:        "localhost:4318",
	}
}

// LoadConfig читает Config из окружения и проверяет его.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.KafkaBrokers = normalizeBrokers(cfg.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate отклоняет неизвестный драйвер хранилища и неполные настройки.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("MARKETPLACE_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxRetention <= 0 {
		errs = append(errs, errors.New("outbox retention must be > 0"))
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be > 0"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

func normalizeBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

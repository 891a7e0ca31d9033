package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Consensus configuration.
	Tolerances       domain.ToleranceTable
	TextMatch        domain.TextMatch
	ReconcileWorkers int
	RepairEnabled    bool

	// Re-read service configuration. An empty URL leaves only the repair
	// series embedded in each job.
	RereaderURL       string
	RereaderTimeout   time.Duration
	RereaderCacheSize int

	// DatabaseURL enables the Postgres result store when set.
	DatabaseURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	tolerances, err := loadTolerances()
	if err != nil {
		return nil, err
	}

	textMatch, err := domain.ParseTextMatch(sharedcfg.EnvOrDefault("TEXT_MATCH", string(domain.TextMatchExact)))
	if err != nil {
		return nil, fmt.Errorf("invalid TEXT_MATCH: %w", err)
	}

	workers, err := parsePositiveInt("RECONCILE_WORKERS", 1)
	if err != nil {
		return nil, err
	}

	repairEnabled, err := strconv.ParseBool(sharedcfg.EnvOrDefault("REPAIR_ENABLED", "true"))
	if err != nil {
		return nil, errors.New("invalid REPAIR_ENABLED")
	}

	rereaderTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("REREADER_TIMEOUT", "60s"))
	if err != nil || rereaderTimeout <= 0 {
		return nil, errors.New("invalid REREADER_TIMEOUT")
	}

	cacheSize, err := parsePositiveInt("REREADER_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "chart-extraction-runs"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "chart-consensus-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "chart-consensus"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		Tolerances:       tolerances,
		TextMatch:        textMatch,
		ReconcileWorkers: workers,
		RepairEnabled:    repairEnabled,

		RereaderURL:       os.Getenv("REREADER_URL"),
		RereaderTimeout:   rereaderTimeout,
		RereaderCacheSize: cacheSize,

		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

// loadTolerances layers the built-in table, TOLERANCE_FILE and
// TOLERANCE_OVERRIDES, in that order. DEFAULT_TOLERANCE, when set, wins over
// a default given in the file.
func loadTolerances() (domain.ToleranceTable, error) {
	var def *float64
	if s := os.Getenv("DEFAULT_TOLERANCE"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return domain.ToleranceTable{}, errors.New("invalid DEFAULT_TOLERANCE")
		}
		def = &v
	}
	table, err := BuildTolerances(def, os.Getenv("TOLERANCE_FILE"), os.Getenv("TOLERANCE_OVERRIDES"))
	if err != nil {
		return domain.ToleranceTable{}, fmt.Errorf("tolerances: %w", err)
	}
	return table, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

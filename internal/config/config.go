package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Relational store.
	DatabaseURL string

	// Object storage.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PathStyle bool

	// Origin file server (SFTP).
	OriginHost     string
	OriginUser     string
	OriginPassword string

	// NOAA Storm Events source.
	NoaaBaseURL string
	StartYear   int
	StateFilter string

	// Mapped-event notifications (optional, enabled when brokers are set).
	KafkaBrokers     []string
	KafkaMappedTopic string
	KafkaEnabled     bool

	// External chunk indexer executable.
	IndexerCommand string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// RegistryBatchSize bounds how many rows one flush transaction covers.
	RegistryBatchSize int
	// IndexWorkers caps concurrent index builds and combines.
	IndexWorkers int
	// ListingTimeout bounds remote directory listings before degrading to
	// an empty result.
	ListingTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	listingTimeoutStr := sharedcfg.EnvOrDefault("LISTING_TIMEOUT", "1s")
	listingTimeout, err := time.ParseDuration(listingTimeoutStr)
	if err != nil || listingTimeout <= 0 {
		return nil, errors.New("invalid LISTING_TIMEOUT")
	}

	startYear, err := intEnv("NOAA_START_YEAR", 2016)
	if err != nil {
		return nil, err
	}

	registryBatchSize, err := intEnv("REGISTRY_BATCH_SIZE", 200)
	if err != nil {
		return nil, err
	}

	indexWorkers, err := intEnv("INDEX_WORKERS", defaultIndexWorkers())
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT_URL"),
		S3Region:    sharedcfg.EnvOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    os.Getenv("S3_BUCKET_NAME"),
		S3PathStyle: os.Getenv("S3_PATH_STYLE") == "true",

		OriginHost:     os.Getenv("ORIGIN_HOST"),
		OriginUser:     os.Getenv("ORIGIN_USER"),
		OriginPassword: os.Getenv("ORIGIN_PASSWORD"),

		NoaaBaseURL: sharedcfg.EnvOrDefault("NOAA_BASE_URL",
			"https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles/"),
		StartYear:   startYear,
		StateFilter: sharedcfg.EnvOrDefault("NOAA_STATE_FILTER", "TEXAS"),

		KafkaBrokers:     brokers,
		KafkaMappedTopic: sharedcfg.EnvOrDefault("KAFKA_MAPPED_TOPIC", "mapped-storm-events"),
		KafkaEnabled:     kafkaEnabled,

		IndexerCommand: sharedcfg.EnvOrDefault("INDEXER_COMMAND", "kerchunk-index"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RegistryBatchSize: registryBatchSize,
		IndexWorkers:      indexWorkers,
		ListingTimeout:    listingTimeout,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET_NAME is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// defaultIndexWorkers sizes the index-build semaphore: host CPU count,
// never below 4. The external indexer tolerates only a few parallel
// invocations, so this also caps peak memory.
func defaultIndexWorkers() int {
	if n := runtime.NumCPU(); n > 4 {
		return n
	}
	return 4
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"learnhub/internal/common/cache"
	"learnhub/internal/common/db"
	commonmw "learnhub/internal/common/http/middleware"
	"learnhub/internal/common/mq"
	"learnhub/internal/common/storage"
	"learnhub/internal/harness/archive"
	"learnhub/internal/harness/sandbox"
	"learnhub/internal/harness/sandbox/engine"
	harness "learnhub/internal/harness/service"
	"learnhub/internal/llm"
	"learnhub/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 90 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second

	defaultActivityTopic = "learnhub.activity"
	defaultActivityGroup = "learnhub-activity-writer"
	defaultPruneInterval = time.Hour
	defaultLookupTTL     = 5 * time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// HarnessConfig holds the execution harness settings.
type HarnessConfig struct {
	harness.Settings `yaml:",inline"`

	Engine        engine.Config      `yaml:"engine"`
	Toolchains    []sandbox.ToolSpec `yaml:"toolchains"`
	LookupTTL     time.Duration      `yaml:"lookupTTL"`
	Archive       archive.Config     `yaml:"archive"`
	PruneInterval time.Duration      `yaml:"pruneInterval"`
}

// KafkaConfig holds Kafka settings. No brokers means activity is written directly.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	GroupPrefix  string        `yaml:"groupPrefix"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// ProgressConfig holds progress cache settings.
type ProgressConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// QuizConfig holds quiz settings.
type QuizConfig struct {
	QuestionTTL time.Duration `yaml:"questionTTL"`
}

// ActivityConfig holds the activity stream settings.
type ActivityConfig struct {
	Topic           string        `yaml:"topic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	Concurrency     int           `yaml:"concurrency"`
	PrefetchCount   int           `yaml:"prefetchCount"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
}

// AppConfig holds the learn-service configuration.
type AppConfig struct {
	Server    ServerConfig             `yaml:"server"`
	CORS      commonmw.CORSConfig      `yaml:"cors"`
	RateLimit commonmw.RateLimitPolicy `yaml:"rateLimit"`
	Logger    logger.Config            `yaml:"logger"`
	Harness   HarnessConfig            `yaml:"harness"`
	Redis     cache.RedisConfig        `yaml:"redis"`
	Database  db.MySQLConfig           `yaml:"database"`
	Kafka     KafkaConfig              `yaml:"kafka"`
	MinIO     storage.MinIOConfig      `yaml:"minio"`
	LLM       llm.Config               `yaml:"llm"`
	Progress  ProgressConfig           `yaml:"progress"`
	Quiz      QuizConfig               `yaml:"quiz"`
	Activity  ActivityConfig           `yaml:"activity"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Harness.Archive.Enabled && cfg.MinIO.Endpoint == "" {
		return nil, fmt.Errorf("harness archive requires minio endpoint")
	}
	applyServerDefaults(&cfg.Server)
	applyRedisDefaults(&cfg.Redis)
	applyHarnessDefaults(&cfg.Harness, cfg.MinIO)
	applyLLMDefaults(&cfg.LLM)
	applyActivityDefaults(&cfg.Activity)
	cfg.CORS.ApplyDefaults()
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Quiz.QuestionTTL == 0 {
		cfg.Quiz.QuestionTTL = time.Hour
	}
	return &cfg, nil
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = defaultHTTPAddr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func applyHarnessDefaults(cfg *HarnessConfig, minio storage.MinIOConfig) {
	if cfg.LookupTTL == 0 {
		cfg.LookupTTL = defaultLookupTTL
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = minio.Bucket
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = defaultPruneInterval
	}
}

func applyLLMDefaults(cfg *llm.Config) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LEARNHUB_LLM_API_KEY")
	}
}

func applyActivityDefaults(cfg *ActivityConfig) {
	if cfg.Topic == "" {
		cfg.Topic = defaultActivityTopic
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = defaultActivityGroup
	}
}

func (a ActivityConfig) toSubscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   a.ConsumerGroup,
		Concurrency:     a.Concurrency,
		PrefetchCount:   a.PrefetchCount,
		MaxRetries:      a.MaxRetries,
		RetryDelay:      a.RetryDelay,
		DeadLetterTopic: a.DeadLetterTopic,
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		GroupPrefix:  k.GroupPrefix,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

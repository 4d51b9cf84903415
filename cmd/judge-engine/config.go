package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/harness"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/transport"
	"codejudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWorkRoot        = "/tmp"
	defaultRecipeDir       = "docker"
	defaultProblemTTL      = 5 * time.Minute
	defaultProblemEmptyTTL = 30 * time.Second
	defaultSubmissionTTL   = time.Minute
	defaultFinalTopic      = "judge.status.final"
	defaultArchiveBucket   = "submissions"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	CORS commonmw.CORSConfig `yaml:"cors"`
}

// RateLimitConfig bounds websocket connects. Limiting needs redis.
type RateLimitConfig struct {
	Connect commonmw.RateLimitPolicy `yaml:"connect"`
	Timeout time.Duration            `yaml:"timeout"`
}

// KafkaConfig holds Kafka producer settings. Empty brokers disable event publishing.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
}

// JudgeConfig holds job execution settings.
type JudgeConfig struct {
	WorkRoot      string               `yaml:"workRoot"`
	RecipeDir     string               `yaml:"recipeDir"`
	RunTimeout    time.Duration        `yaml:"runTimeout"`
	BuildTimeout  time.Duration        `yaml:"buildTimeout"`
	StoreTimeout  time.Duration        `yaml:"storeTimeout"`
	QueueCapacity int                  `yaml:"queueCapacity"`
	Docker        sandbox.DockerConfig `yaml:"docker"`
}

// ProblemCacheConfig holds TTLs for cached problem lookups.
type ProblemCacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	EmptyTTL      time.Duration `yaml:"emptyTTL"`
	SubmissionTTL time.Duration `yaml:"submissionTTL"`
}

// ArchiveConfig holds source archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
}

// EventsConfig holds final status event settings.
type EventsConfig struct {
	FinalTopic string `yaml:"finalTopic"`
}

// AppConfig holds judge-engine config.
type AppConfig struct {
	Server       ServerConfig                `yaml:"server"`
	Logger       logger.Config               `yaml:"logger"`
	Database     db.MySQLConfig              `yaml:"database"`
	Redis        cache.RedisConfig           `yaml:"redis"`
	Kafka        KafkaConfig                 `yaml:"kafka"`
	MinIO        storage.MinIOConfig         `yaml:"minio"`
	Auth         transport.AuthConfig        `yaml:"auth"`
	WebSocket    transport.Config            `yaml:"websocket"`
	Judge        JudgeConfig                 `yaml:"judge"`
	ProblemCache ProblemCacheConfig          `yaml:"problemCache"`
	Archive      ArchiveConfig               `yaml:"archive"`
	Events       EventsConfig                `yaml:"events"`
	RateLimit    RateLimitConfig             `yaml:"rateLimit"`
	Languages    map[string]harness.Override `yaml:"languages"`
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
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Auth.Secret == "" && cfg.Auth.JWK == "" {
		return fmt.Errorf("auth secret or jwk is required")
	}
	if cfg.Archive.Enabled && cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required when archive is enabled")
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.Judge.RecipeDir == "" {
		cfg.Judge.RecipeDir = defaultRecipeDir
	}
	if cfg.ProblemCache.TTL == 0 {
		cfg.ProblemCache.TTL = defaultProblemTTL
	}
	if cfg.ProblemCache.EmptyTTL == 0 {
		cfg.ProblemCache.EmptyTTL = defaultProblemEmptyTTL
	}
	if cfg.ProblemCache.SubmissionTTL == 0 {
		cfg.ProblemCache.SubmissionTTL = defaultSubmissionTTL
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = defaultArchiveBucket
	}
	if cfg.Events.FinalTopic == "" {
		cfg.Events.FinalTopic = defaultFinalTopic
	}
	return nil
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

func (j JudgeConfig) toRunnerConfig() sandbox.Config {
	return sandbox.Config{
		WorkRoot:     j.WorkRoot,
		RecipeDir:    j.RecipeDir,
		BuildTimeout: j.BuildTimeout,
		MountPath:    j.Docker.MountPath,
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
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

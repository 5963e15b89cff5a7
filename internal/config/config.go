package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/util"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"

	"github.com/caarlos0/env/v11"
)

type LogConfig struct {
	Debug  bool   `env:"DEBUG" envDefault:"false"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

type AIConfig struct {
	// Adapter is "ollama" for a local model or "openai" for any
	// OpenAI-compatible remote endpoint.
	Adapter       string        `env:"AI_ADAPTER" envDefault:"ollama"`
	BaseURL       string        `env:"AI_CHAT_URL"`
	APIKey        string        `env:"AI_CHAT_KEY"`
	Model         string        `env:"AI_CHAT_MODEL" envDefault:"qwen3:30b"`
	SchemaModel   string        `env:"AI_SCHEMA_MODEL"`
	ContextWindow int           `env:"AI_NUM_CTX" envDefault:"8192"`
	Temperature   float64       `env:"AI_TEMPERATURE" envDefault:"0"`
	Thinking      string        `env:"AI_THINKING"`
	ParallelReq   int64         `env:"AI_PARALLEL_REQ" envDefault:"4"`
	MaxRetries    int           `env:"AI_MAX_RETRIES" envDefault:"1"`
	RetryDelay    time.Duration `env:"AI_RETRY_DELAY" envDefault:"0s"`
}

// Local reports whether the configured adapter runs a local model.
func (c AIConfig) Local() bool {
	return c.Adapter == "ollama"
}

// Identity returns the oracle identity used in cache keys.
func (c AIConfig) Identity() common.OracleIdentity {
	return common.OracleIdentity{
		Local:         c.Local(),
		Model:         c.Model,
		ContextWindow: c.ContextWindow,
	}
}

type ExtractConfig struct {
	ChunkSize      int    `env:"CHUNK_SIZE" envDefault:"1536"`
	ChunkOverlap   int    `env:"CHUNK_OVERLAP" envDefault:"160"`
	SplitThreshold int    `env:"SCHEMA_SPLIT_THRESHOLD" envDefault:"5"`
	DefaultSchema  string `env:"SCHEMA_DEFAULT" envDefault:"minimal"`
	SchemaFile     string `env:"SCHEMA_FILE"`
	UseCache       bool   `env:"USE_CACHE" envDefault:"true"`
}

type OptimizeConfig struct {
	Enabled        bool   `env:"OPTIMIZE_ENABLED" envDefault:"false"`
	MinHubDegree   int    `env:"OPTIMIZE_MIN_HUB_DEGREE" envDefault:"50"`
	MaxGroupSize   int    `env:"OPTIMIZE_MAX_GROUP_SIZE" envDefault:"10"`
	MaxIterations  int    `env:"OPTIMIZE_MAX_ITERATIONS" envDefault:"3"`
	RemoveIsolated bool   `env:"OPTIMIZE_REMOVE_ISOLATED" envDefault:"false"`
	Reconnect      bool   `env:"OPTIMIZE_RECONNECT" envDefault:"false"`
	// Strategy is positional, community or llm.
	Strategy string `env:"OPTIMIZE_STRATEGY" envDefault:"positional"`
}

// Params converts the optimizer section to pipeline parameters.
func (c OptimizeConfig) Params() common.OptimizeParams {
	return common.OptimizeParams{
		MinHubDegree:   c.MinHubDegree,
		MaxGroupSize:   c.MaxGroupSize,
		MaxIterations:  c.MaxIterations,
		RemoveIsolated: c.RemoveIsolated,
		Reconnect:      c.Reconnect,
	}
}

type CacheConfig struct {
	// Backend is one of fs, s3, redis, postgres.
	Backend string `env:"CACHE_BACKEND" envDefault:"fs"`
	Dir     string `env:"CACHE_DIR" envDefault:"./cache"`
	Prefix  string `env:"CACHE_PREFIX" envDefault:"graph_docs"`
}

type SourceConfig struct {
	// Backend is fs or s3.
	Backend string `env:"SOURCE_BACKEND" envDefault:"fs"`
	Dir     string `env:"NOVEL_DIR" envDefault:"./novels"`
	Prefix  string `env:"NOVEL_PREFIX" envDefault:"novels"`
}

type S3Config struct {
	Region    string `env:"AWS_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"AWS_ENDPOINT"`
	AccessKey string `env:"AWS_ACCESS_KEY"`
	SecretKey string `env:"AWS_SECRET_KEY"`
	Bucket    string `env:"AWS_BUCKET" envDefault:"storygraph"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type PostgresConfig struct {
	URL           string `env:"DATABASE_URL"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`
	AutoMigrate   bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"false"`
}

type RabbitConfig struct {
	User     string `env:"RABBITMQ_USER" envDefault:"guest"`
	Password string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	Host     string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port     string `env:"RABBITMQ_PORT" envDefault:"5672"`
}

// URL returns the AMQP connection URL.
func (c RabbitConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

type Neo4jConfig struct {
	URI      string `env:"NEO4J_URI"`
	User     string `env:"NEO4J_USER" envDefault:"neo4j"`
	Password string `env:"NEO4J_PASSWORD"`
	Database string `env:"NEO4J_DATABASE"`
}

type BatchConfig struct {
	Workers     int           `env:"BATCH_WORKERS" envDefault:"2"`
	MinInterval time.Duration `env:"BATCH_MIN_INTERVAL" envDefault:"0s"`
	LeaseTTL    time.Duration `env:"BATCH_LEASE_TTL" envDefault:"10m"`
}

type ServerConfig struct {
	Port           string `env:"PORT" envDefault:"8080"`
	AuthURL        string `env:"AUTH_URL"`
	MasterAPIKey   string `env:"MASTER_API_KEY"`
	MasterUserID   int32  `env:"MASTER_USER_ID" envDefault:"0"`
	MasterUserRole string `env:"MASTER_USER_ROLE" envDefault:"admin"`
	BodyLimit      string `env:"BODY_LIMIT" envDefault:"64M"`
}

// Config is the full process configuration, read from the environment after
// an optional .env file has been loaded.
type Config struct {
	Log      LogConfig
	AI       AIConfig
	Extract  ExtractConfig
	Optimize OptimizeConfig
	Cache    CacheConfig
	Source   SourceConfig
	S3       S3Config
	Redis    RedisConfig
	Postgres PostgresConfig
	Rabbit   RabbitConfig
	Neo4j    Neo4jConfig
	Batch    BatchConfig
	Server   ServerConfig
}

// Load reads .env files (if any) and parses the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	util.LoadEnv(envFiles...)
	return Parse()
}

// Parse reads the current environment into a Config without touching .env
// files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.AI.Adapter = strings.ToLower(strings.TrimSpace(cfg.AI.Adapter))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Source.Backend = strings.ToLower(strings.TrimSpace(cfg.Source.Backend))
	return cfg, nil
}

// Validate checks combinations the environment parser cannot express. A remote
// adapter without credentials is a configuration error and must surface before
// any extraction starts.
func (c *Config) Validate() error {
	switch c.AI.Adapter {
	case "ollama":
	case "openai":
		if c.AI.APIKey == "" {
			return &graph.ConfigurationError{Field: "AI_CHAT_KEY", Reason: "remote adapter requires an API key"}
		}
	default:
		return &graph.ConfigurationError{Field: "AI_ADAPTER", Reason: fmt.Sprintf("unknown adapter %q", c.AI.Adapter)}
	}

	switch c.Cache.Backend {
	case "fs", "s3", "redis":
	case "postgres":
		if c.Postgres.URL == "" {
			return &graph.ConfigurationError{Field: "DATABASE_URL", Reason: "postgres cache backend requires a database url"}
		}
	default:
		return &graph.ConfigurationError{Field: "CACHE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}

	if c.Extract.ChunkSize <= 0 {
		return &graph.ConfigurationError{Field: "CHUNK_SIZE", Reason: "must be positive"}
	}
	if c.Extract.ChunkOverlap < 0 || c.Extract.ChunkOverlap >= c.Extract.ChunkSize {
		return &graph.ConfigurationError{Field: "CHUNK_OVERLAP", Reason: "must be in [0, CHUNK_SIZE)"}
	}
	return nil
}

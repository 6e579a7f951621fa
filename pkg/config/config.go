// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem, including the field mapping, analyzers and similarity defaults
// the indexer and searcher share.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Search     SearchConfig     `yaml:"search"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Mapping    MappingConfig    `yaml:"mapping"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topics        KafkaTopics   `yaml:"topics"`
	// Compression is the producer batch codec: none, gzip, snappy, lz4 or
	// zstd.
	Compression   string        `yaml:"compression"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
	// DeadLetter receives ingest messages the indexer gave up on. Empty
	// disables dead-lettering.
	DeadLetter     string `yaml:"deadLetter"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the indexing engine's shard layout, memory
// thresholds and flush interval.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	NumShards      int           `yaml:"numShards"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	// Compression is the segment block codec: none, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// SearchConfig controls query execution limits, timeouts and how often the
// searcher picks up segments written by the indexer.
type SearchConfig struct {
	MaxResults      int           `yaml:"maxResults"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	TimeoutPerShard time.Duration `yaml:"timeoutPerShard"`
	ReloadInterval  time.Duration `yaml:"reloadInterval"`
	QueryCacheSize  int           `yaml:"queryCacheSize"`
}

// SimilarityConfig selects the ambient scoring model and the defaults for
// parameterized models.
type SimilarityConfig struct {
	// Default is a selector string ("bm25", "class", "custom", "freq",
	// "bucket-<base>") for the model attached to every search.
	Default          string        `yaml:"default"`
	DiscountOverlaps bool          `yaml:"discountOverlaps"`
	BM25             BM25Config    `yaml:"bm25"`
	Tunable          TunableConfig `yaml:"tunable"`
	// StepwiseBase is the base multistep queries use when none is given.
	StepwiseBase float64 `yaml:"stepwiseBase"`
}

// BM25Config holds the classical model's parameters.
type BM25Config struct {
	K1 float32 `yaml:"k1"`
	B  float32 `yaml:"b"`
}

// TunableConfig holds the parameters the "custom" selector resolves to.
type TunableConfig struct {
	K1                 float32 `yaml:"k1"`
	B                  float32 `yaml:"b"`
	ApplyTermFrequency bool    `yaml:"applyTermFrequency"`
}

// AnalysisConfig declares custom analyzers on top of the built-in
// standard, english and keyword analyzers.
type AnalysisConfig struct {
	Analyzers map[string]AnalyzerConfig `yaml:"analyzers"`
}

// AnalyzerConfig extends a built-in analyzer.
type AnalyzerConfig struct {
	Base          string   `yaml:"base"`
	Synonyms      []string `yaml:"synonyms"`
	StopWords     []string `yaml:"stopWords"`
	MaxTokenCount int      `yaml:"maxTokenCount"`
}

// MappingConfig lists the indexed fields. Fields not listed are unmapped:
// they are neither indexed nor searchable.
type MappingConfig struct {
	DefaultField string                 `yaml:"defaultField"`
	Fields       map[string]FieldConfig `yaml:"fields"`
}

// FieldConfig configures one mapped field.
type FieldConfig struct {
	Analyzer       string `yaml:"analyzer"`
	SearchAnalyzer string `yaml:"searchAnalyzer"`
	// IndexOptions is one of docs, freqs, positions or offsets.
	IndexOptions string `yaml:"indexOptions"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	// Decoding merges into non-nil maps, so the default fields are only
	// added when the file declares none.
	if len(cfg.Mapping.Fields) == 0 {
		cfg.Mapping.Fields = defaultFields()
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would otherwise only fail once a query is
// built.
func (c *Config) Validate() error {
	if c.Indexer.NumShards <= 0 {
		return fmt.Errorf("indexer.numShards must be positive, got %d", c.Indexer.NumShards)
	}
	switch c.Indexer.Compression {
	case "", "none", "lz4", "zstd":
	default:
		return fmt.Errorf("indexer.compression must be none, lz4 or zstd, got %q", c.Indexer.Compression)
	}
	switch c.Kafka.Compression {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be none, gzip, snappy, lz4 or zstd, got %q", c.Kafka.Compression)
	}
	sim := c.Similarity
	if math.IsNaN(sim.StepwiseBase) || math.IsInf(sim.StepwiseBase, 0) || sim.StepwiseBase <= 1 {
		return fmt.Errorf("similarity.stepwiseBase must be a finite number greater than 1, got %v", sim.StepwiseBase)
	}
	for name, p := range map[string][2]float32{
		"bm25":    {sim.BM25.K1, sim.BM25.B},
		"tunable": {sim.Tunable.K1, sim.Tunable.B},
	} {
		k1, b := float64(p[0]), float64(p[1])
		if math.IsNaN(k1) || math.IsInf(k1, 0) || k1 < 0 {
			return fmt.Errorf("similarity.%s.k1 must be a non-negative finite value, got %v", name, k1)
		}
		if math.IsNaN(b) || b < 0 || b > 1 {
			return fmt.Errorf("similarity.%s.b must be between 0 and 1, got %v", name, b)
		}
	}
	if len(c.Mapping.Fields) == 0 {
		return fmt.Errorf("mapping.fields must declare at least one field")
	}
	if _, ok := c.Mapping.Fields[c.Mapping.DefaultField]; !ok {
		return fmt.Errorf("mapping.defaultField %q is not a mapped field", c.Mapping.DefaultField)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchplatform-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
				DeadLetter:     "document-ingest.dlq",
			},
			Compression:  "lz4",
			BatchTimeout: 10 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			NumShards:      8,
			SegmentMaxSize: 64 << 20,
			FlushInterval:  30 * time.Second,
			Compression:    "zstd",
		},
		Search: SearchConfig{
			MaxResults:      1000,
			DefaultLimit:    10,
			TimeoutPerShard: 2 * time.Second,
			ReloadInterval:  15 * time.Second,
			QueryCacheSize:  256,
		},
		Similarity: SimilarityConfig{
			Default:          "bm25",
			DiscountOverlaps: true,
			BM25:             BM25Config{K1: 1.2, B: 0.75},
			Tunable:          TunableConfig{K1: 1.2, B: 0.75},
			StepwiseBase:     math.E,
		},
		Mapping: MappingConfig{DefaultField: "body"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func defaultFields() map[string]FieldConfig {
	return map[string]FieldConfig{
		"title": {Analyzer: "english", IndexOptions: "offsets"},
		"body":  {Analyzer: "english", IndexOptions: "offsets"},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_KAFKA_COMPRESSION"); v != "" {
		cfg.Kafka.Compression = v
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_COMPRESSION"); v != "" {
		cfg.Indexer.Compression = v
	}
	if v := os.Getenv("SP_INDEXER_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.NumShards = n
		}
	}
	if v := os.Getenv("SP_SIMILARITY_DEFAULT"); v != "" {
		cfg.Similarity.Default = v
	}
	if v := os.Getenv("SP_SIMILARITY_STEPWISE_BASE"); v != "" {
		if base, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Similarity.StepwiseBase = base
		}
	}
}

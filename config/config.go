// Package config loads the process configuration from a YAML file, an
// optional .env file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
)

// Storage backends
const (
	StorageBadger    = "badger"
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"
)

// Index backends
const (
	IndexBadger = "badger"
	IndexQdrant = "qdrant"
)

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	UploadDir           string `yaml:"upload_dir"`
	MaxUploadBytes      int64  `yaml:"max_upload_bytes"`
	TrustProxy          bool   `yaml:"trust_proxy"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// AIConfig configures the OpenAI-compatible embedding and generation services.
type AIConfig struct {
	BaseURL           string  `yaml:"base_url"`
	EmbeddingBaseURL  string  `yaml:"embedding_base_url"`
	GenerationBaseURL string  `yaml:"generation_base_url"`
	APIKey            string  `yaml:"api_key"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	GenerationModel   string  `yaml:"generation_model"`
	Temperature       float64 `yaml:"temperature"`
}

// StorageConfig selects where sessions and assets live.
type StorageConfig struct {
	Backend              string `yaml:"backend"`
	DataPath             string `yaml:"data_path"`
	SQLitePath           string `yaml:"sqlite_path"`
	FirestoreProject     string `yaml:"firestore_project"`
	FirestoreCredentials string `yaml:"firestore_credentials"`
}

// QdrantConfig contains connection details for a Qdrant vector index.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig selects the vector index.
type IndexConfig struct {
	Backend   string       `yaml:"backend"`
	Namespace string       `yaml:"namespace"`
	Qdrant    QdrantConfig `yaml:"qdrant"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	ChunkSize              int     `yaml:"chunk_size"`
	ChunkOverlap           int     `yaml:"chunk_overlap"`
	Concurrency            int     `yaml:"concurrency"`
	BatchSize              int     `yaml:"batch_size"`
	EmbedRequestsPerSecond float64 `yaml:"embed_requests_per_second"`
	EmbedBurst             int     `yaml:"embed_burst"`
}

// ChatConfig tunes retrieval.
type ChatConfig struct {
	TopK           int  `yaml:"top_k"`
	ValidateAssets bool `yaml:"validate_assets"`
}

// RateLimitConfig configures the per-client limiter. A zero limit disables it.
type RateLimitConfig struct {
	Limit        int `yaml:"limit"`
	IntervalSecs int `yaml:"interval_secs"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	AI        AIConfig        `yaml:"ai"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Chat      ChatConfig      `yaml:"chat"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:                ":3000",
			UploadDir:           "./uploads",
			MaxUploadBytes:      32 << 20,
			ShutdownTimeoutSecs: 10,
		},
		AI: AIConfig{
			BaseURL:         aiDefaults.EmbeddingHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerationModel: aiDefaults.GenerationModel,
			Temperature:     aiDefaults.Temperature,
		},
		Storage: StorageConfig{
			Backend:    StorageBadger,
			DataPath:   "./data",
			SQLitePath: "./ragchat.db",
		},
		Index: IndexConfig{
			Backend:   IndexBadger,
			Namespace: "ns1",
			Qdrant: QdrantConfig{
				URL:         "http://localhost:6334",
				Collection:  "ragchat",
				Dimension:   3072,
				TimeoutSecs: 15,
			},
		},
		Ingestion: IngestionConfig{
			ChunkSize:    800,
			ChunkOverlap: 50,
			Concurrency:  5,
			BatchSize:    16,
			EmbedBurst:   1,
		},
		Chat: ChatConfig{
			TopK:           2,
			ValidateAssets: true,
		},
		RateLimit: RateLimitConfig{
			Limit:        20,
			IntervalSecs: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file or empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) without overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	str("RAGCHAT_ADDR", &c.Server.Addr)
	str("RAGCHAT_UPLOAD_DIR", &c.Server.UploadDir)

	str("OPENAI_API_KEY", &c.AI.APIKey)
	str("RAGCHAT_API_KEY", &c.AI.APIKey)
	str("RAGCHAT_AI_BASE_URL", &c.AI.BaseURL)
	str("RAGCHAT_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	str("RAGCHAT_GENERATION_MODEL", &c.AI.GenerationModel)
	float("RAGCHAT_TEMPERATURE", &c.AI.Temperature)

	str("RAGCHAT_STORAGE_BACKEND", &c.Storage.Backend)
	str("RAGCHAT_DATA_PATH", &c.Storage.DataPath)
	str("RAGCHAT_SQLITE_PATH", &c.Storage.SQLitePath)
	str("RAGCHAT_FIRESTORE_PROJECT", &c.Storage.FirestoreProject)
	str("RAGCHAT_FIRESTORE_CREDENTIALS", &c.Storage.FirestoreCredentials)

	str("RAGCHAT_INDEX_BACKEND", &c.Index.Backend)
	str("RAGCHAT_NAMESPACE", &c.Index.Namespace)
	str("RAGCHAT_QDRANT_URL", &c.Index.Qdrant.URL)
	str("QDRANT_API_KEY", &c.Index.Qdrant.APIKey)
	str("RAGCHAT_QDRANT_COLLECTION", &c.Index.Qdrant.Collection)
	num("RAGCHAT_QDRANT_DIMENSION", &c.Index.Qdrant.Dimension)

	num("RAGCHAT_CHUNK_SIZE", &c.Ingestion.ChunkSize)
	num("RAGCHAT_CHUNK_OVERLAP", &c.Ingestion.ChunkOverlap)
	num("RAGCHAT_TOP_K", &c.Chat.TopK)
	num("RAGCHAT_RATE_LIMIT", &c.RateLimit.Limit)

	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.UploadDir == "" {
		return errors.New("config: server.upload_dir is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("config: server.max_upload_bytes must be positive")
	}

	switch c.Storage.Backend {
	case StorageBadger:
		if c.Storage.DataPath == "" {
			return errors.New("config: storage.data_path is required for badger")
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("config: storage.sqlite_path is required for sqlite")
		}
	case StorageFirestore:
		if c.Storage.FirestoreProject == "" {
			return errors.New("config: storage.firestore_project is required for firestore")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Index.Backend {
	case IndexBadger:
		if c.Storage.DataPath == "" {
			return errors.New("config: storage.data_path is required for the badger index")
		}
	case IndexQdrant:
		if c.Index.Qdrant.URL == "" || c.Index.Qdrant.Collection == "" {
			return errors.New("config: index.qdrant.url and index.qdrant.collection are required")
		}
		if c.Index.Qdrant.Dimension <= 0 {
			return errors.New("config: index.qdrant.dimension must be positive")
		}
	default:
		return fmt.Errorf("config: unknown index backend %q", c.Index.Backend)
	}
	if strings.TrimSpace(c.Index.Namespace) == "" {
		return errors.New("config: index.namespace is required")
	}

	if err := core.ValidateChunking(c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Ingestion.Concurrency < 1 || c.Ingestion.BatchSize < 1 {
		return errors.New("config: ingestion.concurrency and ingestion.batch_size must be positive")
	}
	if c.Chat.TopK < 1 {
		return errors.New("config: chat.top_k must be positive")
	}
	if c.RateLimit.Limit < 0 || (c.RateLimit.Limit > 0 && c.RateLimit.IntervalSecs <= 0) {
		return errors.New("config: rate_limit.limit must not be negative and interval_secs must be positive")
	}
	return c.AIConfig().Validate()
}

// AIConfig builds the ai package configuration.
func (c *Config) AIConfig() *ai.Config {
	embeddingHost := c.AI.BaseURL
	if c.AI.EmbeddingBaseURL != "" {
		embeddingHost = c.AI.EmbeddingBaseURL
	}
	generationHost := c.AI.BaseURL
	if c.AI.GenerationBaseURL != "" {
		generationHost = c.AI.GenerationBaseURL
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithGenerationHost(generationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// RateInterval returns the limiter window length.
func (c *Config) RateInterval() time.Duration {
	return time.Duration(c.RateLimit.IntervalSecs) * time.Second
}

// ShutdownTimeout returns how long the server waits for in-flight requests.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}

// QdrantTimeout returns the per-request timeout for the Qdrant client.
func (c *Config) QdrantTimeout() time.Duration {
	return time.Duration(c.Index.Qdrant.TimeoutSecs) * time.Second
}

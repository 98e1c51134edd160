package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultIntercomBaseURL = "https://api.intercom.io"
	defaultIntercomVersion = "2.11"
	defaultPerPage         = 50
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultLLMModel        = "gpt-4o-mini"
	defaultEmbeddingModel  = "text-embedding-3-small"
	defaultDimensions      = 1536
	defaultBatchSize       = 64
	defaultMaxChunkSize    = 2000
	defaultMinChunkSize    = 100
	defaultCategorizeChars = 4000
	defaultContextChars    = 12000
	defaultPrefaceChars    = 400
	defaultEnrichTokens    = 80
	defaultRequestsPerSec  = 5
	defaultTimeout         = 60 * time.Second
	defaultMaxImageBytes   = 5 << 20
	defaultMinImagePixels  = 80
	defaultChromaPath      = "./chromemdb"
	defaultCollectionName  = "help_center_articles"
	defaultMongoDatabase   = "knowledge_base"
	defaultMongoCollection = "KyteFAQKnowledgeBase"
	defaultVectorIndex     = "vector_index"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreChroma   = "chromem"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderCompat = "openai-compatible"
	ProviderOllama = "ollama"
)

type Config struct {
	Intercom  IntercomConfig `yaml:"intercom"`
	LLM       LLMConfig      `yaml:"llm" envPrefix:"LLM_"`
	VisionLLM LLMConfig      `yaml:"vision_llm" envPrefix:"VISION_LLM_"`
	EmbedLLM  EmbedConfig    `yaml:"embed_llm"`
	Store     string         `yaml:"store" env:"STORE"`
	Database  DatabaseConfig `yaml:"database"`
	Chroma    ChromaConfig   `yaml:"chroma"`
	Mongo     MongoConfig    `yaml:"mongo"`
	RAG       RAGConfig      `yaml:"rag"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

type IntercomConfig struct {
	BaseURL        string        `yaml:"base_url" env:"INTERCOM_BASE_URL"`
	Token          string        `yaml:"token" env:"INTERCOM_API_TOKEN"`
	Version        string        `yaml:"version" env:"INTERCOM_VERSION"`
	PerPage        int           `yaml:"per_page"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LLMConfig points at an OpenAI compatible chat endpoint.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	Key            string        `yaml:"key" env:"API_KEY"`
	Model          string        `yaml:"model" env:"MODEL"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

type EmbedConfig struct {
	Provider       string        `yaml:"provider" env:"EMBED_PROVIDER"`
	BaseURL        string        `yaml:"base_url" env:"EMBED_BASE_URL"`
	Key            string        `yaml:"key" env:"OPENAI_API_KEY"`
	Model          string        `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions     int           `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	BatchSize      int           `yaml:"batch_size"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	Password string `yaml:"password" env:"DATABASE_PASSWORD"`
	// Driver selects pgdriver (default) or lib/pq.
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type ChromaConfig struct {
	Path       string `yaml:"path" env:"CHROMEM_PATH"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
	Compress   bool   `yaml:"compress"`
}

type MongoConfig struct {
	URI         string `yaml:"uri" env:"MONGODB_URI"`
	Database    string `yaml:"database" env:"MONGODB_DATABASE"`
	Collection  string `yaml:"collection" env:"MONGODB_COLLECTION"`
	VectorIndex string `yaml:"vector_index"`
	// DisableTransactions is needed for standalone servers without a replica set.
	DisableTransactions bool `yaml:"disable_transactions"`
}

type RAGConfig struct {
	CollectionID           string   `yaml:"collection_id" env:"RAG_COLLECTION_ID"`
	ExcludedArticleIDs     []string `yaml:"excluded_article_ids"`
	MultilingualArticleIDs []string `yaml:"multilingual_article_ids"`
	PrimaryLanguages       []string `yaml:"primary_languages"`
	MultilingualLanguages  []string `yaml:"multilingual_languages"`
	DefaultCategory        string   `yaml:"default_category"`
	MaxChunkSize           int      `yaml:"max_chunk_size"`
	MinChunkSize           int      `yaml:"min_chunk_size"`
	MaxCategorizeChars     int      `yaml:"max_categorize_chars"`
	MaxContextChars        int      `yaml:"max_context_chars"`
	MaxPrefaceChars        int      `yaml:"max_preface_chars"`
	EnrichMaxTokens        int      `yaml:"enrich_max_tokens"`
	EmbedWithTitle         bool     `yaml:"embed_with_title"`
	Workers                int      `yaml:"workers" env:"RAG_WORKERS"`
	DescribeImages         bool     `yaml:"describe_images"`
	MaxImageBytes          int64    `yaml:"max_image_bytes"`
	MinImagePixels         int      `yaml:"min_image_pixels"`
	TopK                   int      `yaml:"top_k"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// LoadConfig reads the YAML file at path and applies environment overrides.
// A missing file is not an error when the environment supplies the rest.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Intercom.BaseURL == "" {
		c.Intercom.BaseURL = defaultIntercomBaseURL
	}
	if c.Intercom.Version == "" {
		c.Intercom.Version = defaultIntercomVersion
	}
	if c.Intercom.PerPage <= 0 {
		c.Intercom.PerPage = defaultPerPage
	}
	if c.Intercom.RequestsPerSec <= 0 {
		c.Intercom.RequestsPerSec = defaultRequestsPerSec
	}
	if c.Intercom.Timeout <= 0 {
		c.Intercom.Timeout = defaultTimeout
	}

	c.LLM.applyDefaults()
	if c.VisionLLM.Key == "" {
		c.VisionLLM.Key = c.LLM.Key
	}
	if c.VisionLLM.BaseURL == "" {
		c.VisionLLM.BaseURL = c.LLM.BaseURL
	}
	c.VisionLLM.applyDefaults()

	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = ProviderOpenAI
	}
	if c.EmbedLLM.Key == "" {
		c.EmbedLLM.Key = c.LLM.Key
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = defaultEmbeddingModel
	}
	if c.EmbedLLM.Dimensions <= 0 {
		c.EmbedLLM.Dimensions = defaultDimensions
	}
	if c.EmbedLLM.BatchSize <= 0 {
		c.EmbedLLM.BatchSize = defaultBatchSize
	}
	if c.EmbedLLM.RequestsPerSec <= 0 {
		c.EmbedLLM.RequestsPerSec = defaultRequestsPerSec
	}
	if c.EmbedLLM.Timeout <= 0 {
		c.EmbedLLM.Timeout = defaultTimeout
	}
	if c.EmbedLLM.MaxRetries <= 0 {
		c.EmbedLLM.MaxRetries = 3
	}

	if c.Store == "" {
		c.Store = StoreMongo
	}
	if c.Chroma.Path == "" {
		c.Chroma.Path = defaultChromaPath
	}
	if c.Chroma.Collection == "" {
		c.Chroma.Collection = defaultCollectionName
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = defaultMongoDatabase
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = defaultMongoCollection
	}
	if c.Mongo.VectorIndex == "" {
		c.Mongo.VectorIndex = defaultVectorIndex
	}

	r := &c.RAG
	if len(r.PrimaryLanguages) == 0 {
		r.PrimaryLanguages = []string{"pt", "pt-BR"}
	}
	if len(r.MultilingualLanguages) == 0 {
		r.MultilingualLanguages = []string{"pt", "pt-BR", "en", "es"}
	}
	if r.DefaultCategory == "" {
		r.DefaultCategory = "technical_support"
	}
	if r.MaxChunkSize <= 0 {
		r.MaxChunkSize = defaultMaxChunkSize
	}
	if r.MinChunkSize <= 0 {
		r.MinChunkSize = defaultMinChunkSize
	}
	if r.MaxCategorizeChars <= 0 {
		r.MaxCategorizeChars = defaultCategorizeChars
	}
	if r.MaxContextChars <= 0 {
		r.MaxContextChars = defaultContextChars
	}
	if r.MaxPrefaceChars <= 0 {
		r.MaxPrefaceChars = defaultPrefaceChars
	}
	if r.EnrichMaxTokens <= 0 {
		r.EnrichMaxTokens = defaultEnrichTokens
	}
	if r.Workers <= 0 {
		r.Workers = 1
	}
	if r.MaxImageBytes <= 0 {
		r.MaxImageBytes = defaultMaxImageBytes
	}
	if r.MinImagePixels <= 0 {
		r.MinImagePixels = defaultMinImagePixels
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
}

func (l *LLMConfig) applyDefaults() {
	if l.BaseURL == "" {
		l.BaseURL = defaultOpenAIBaseURL
	}
	if l.Model == "" {
		l.Model = defaultLLMModel
	}
	if l.RequestsPerSec <= 0 {
		l.RequestsPerSec = defaultRequestsPerSec
	}
	if l.Timeout <= 0 {
		l.Timeout = defaultTimeout
	}
	if l.MaxRetries <= 0 {
		l.MaxRetries = 3
	}
}

// Validate reports every missing value required for an ingestion run.
func (c *Config) Validate() error {
	var missing []string
	if c.Intercom.Token == "" {
		missing = append(missing, "intercom.token (INTERCOM_API_TOKEN)")
	}
	if c.LLM.Key == "" {
		missing = append(missing, "llm.key (LLM_API_KEY)")
	}
	if c.EmbedLLM.Provider != ProviderOllama && c.EmbedLLM.Key == "" {
		missing = append(missing, "embed_llm.key (OPENAI_API_KEY)")
	}
	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			missing = append(missing, "database.url (DATABASE_URL)")
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			missing = append(missing, "mongo.uri (MONGODB_URI)")
		}
	case StoreChroma, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.RAG.MinChunkSize > c.RAG.MaxChunkSize {
		return fmt.Errorf("rag.min_chunk_size %d exceeds rag.max_chunk_size %d", c.RAG.MinChunkSize, c.RAG.MaxChunkSize)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

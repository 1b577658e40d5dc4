// Package config loads process configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/barekit/relnotes/pkg/knowledge/store"
	"github.com/barekit/relnotes/pkg/llm"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig configures the Cloud SQL connection.
type DatabaseConfig struct {
	InstanceName string `yaml:"instance_name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	DSN          string `yaml:"dsn"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// GenerationConfig selects the generation model and its safety thresholds.
type GenerationConfig struct {
	Provider string            `yaml:"provider"`
	Model    string            `yaml:"model"`
	Safety   map[string]string `yaml:"safety"`
}

// VectorStoreConfig selects the vector index backend.
type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Collection string `yaml:"collection"`
	QdrantHost string `yaml:"qdrant_host"`
	QdrantPort int    `yaml:"qdrant_port"`
	QdrantKey  string `yaml:"qdrant_api_key"`
}

// SourceConfig selects where documents are fetched from.
type SourceConfig struct {
	Type    string `yaml:"type"`
	File    string `yaml:"file"`
	Product string `yaml:"product"`
}

// Config is the root configuration.
type Config struct {
	Database       DatabaseConfig    `yaml:"database"`
	Project        string            `yaml:"project"`
	Location       string            `yaml:"location"`
	Embedding      EmbeddingConfig   `yaml:"embedding"`
	Generation     GenerationConfig  `yaml:"generation"`
	RetrievalK     int               `yaml:"retrieval_k"`
	VectorStore    VectorStoreConfig `yaml:"vector_store"`
	Source         SourceConfig      `yaml:"source"`
	LockRedisURL   string            `yaml:"lock_redis_url"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Port           int               `yaml:"port"`
	OpenAIAPIKey   string            `yaml:"openai_api_key"`
	LogLevel       string            `yaml:"log_level"`
	LogFormat      string            `yaml:"log_format"`
}

// Default models per provider. Load swaps in the provider's model when the
// configured one is unset or belongs to another provider.
var (
	embeddingModels = map[string]string{
		"vertex":  "text-embedding-004",
		"openai":  "text-embedding-3-small",
		"hashing": "",
	}
	generationModels = map[string]string{
		"gemini": "gemini-2.0-flash-001",
		"openai": "gpt-4o-mini",
	}
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Location: "us-central1",
		Embedding: EmbeddingConfig{
			Provider:  "vertex",
			Model:     embeddingModels["vertex"],
			Dimension: 768,
			BatchSize: 100,
		},
		Generation: GenerationConfig{
			Provider: "gemini",
			Model:    generationModels["gemini"],
			Safety:   map[string]string{},
		},
		RetrievalK: 4,
		VectorStore: VectorStoreConfig{
			Type:       string(store.TypePostgres),
			Collection: "release_notes",
		},
		Source: SourceConfig{
			Type:    "bigquery",
			Product: "Cloud Run",
		},
		RequestTimeout: 60 * time.Second,
		Port:           8080,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// safetyEnv maps environment keys to safety categories.
var safetyEnv = map[string]llm.Category{
	"SAFETY_DANGEROUS_CONTENT": llm.CategoryDangerousContent,
	"SAFETY_HATE_SPEECH":       llm.CategoryHateSpeech,
	"SAFETY_HARASSMENT":        llm.CategoryHarassment,
	"SAFETY_SEXUAL_CONTENT":    llm.CategorySexualContent,
}

// Load builds the configuration. A .env file in the working directory is loaded
// into the environment if present. path names an optional YAML file; when empty
// CONFIG_FILE is used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Generation.Safety == nil {
			cfg.Generation.Safety = map[string]string{}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Embedding.Model = providerModel(embeddingModels, cfg.Embedding.Provider, cfg.Embedding.Model)
	cfg.Generation.Model = providerModel(generationModels, cfg.Generation.Provider, cfg.Generation.Model)
	return cfg, nil
}

func providerModel(defaults map[string]string, provider, model string) string {
	def, ok := defaults[strings.ToLower(provider)]
	if !ok {
		return model
	}
	if model == "" || foreignModel(defaults, provider, model) {
		return def
	}
	return model
}

// foreignModel reports whether model is the default of a provider other than provider.
func foreignModel(defaults map[string]string, provider, model string) bool {
	for p, m := range defaults {
		if m != "" && m == model && p != strings.ToLower(provider) {
			return true
		}
	}
	return false
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("DB_INSTANCE_NAME", &c.Database.InstanceName)
	str("DB_USER", &c.Database.User)
	str("DB_PASS", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_DSN", &c.Database.DSN)
	str("GOOGLE_CLOUD_PROJECT", &c.Project)
	str("GOOGLE_CLOUD_LOCATION", &c.Location)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("GENERATION_PROVIDER", &c.Generation.Provider)
	str("GENERATION_MODEL", &c.Generation.Model)
	str("VECTOR_STORE", &c.VectorStore.Type)
	str("COLLECTION_NAME", &c.VectorStore.Collection)
	str("QDRANT_HOST", &c.VectorStore.QdrantHost)
	str("QDRANT_API_KEY", &c.VectorStore.QdrantKey)
	str("LOCK_REDIS_URL", &c.LockRedisURL)
	str("SOURCE", &c.Source.Type)
	str("SOURCE_FILE", &c.Source.File)
	str("SOURCE_PRODUCT", &c.Source.Product)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	for key, dst := range map[string]*int{
		"EMBEDDING_DIMENSION":  &c.Embedding.Dimension,
		"EMBEDDING_BATCH_SIZE": &c.Embedding.BatchSize,
		"RETRIEVAL_K":          &c.RetrievalK,
		"QDRANT_PORT":          &c.VectorStore.QdrantPort,
		"PORT":                 &c.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", v, err)
		}
		c.RequestTimeout = d
	}

	for key, cat := range safetyEnv {
		if v := os.Getenv(key); v != "" {
			c.Generation.Safety[string(cat)] = v
		}
	}
	return nil
}

// Safety parses the configured thresholds. Unset categories use BLOCK_ONLY_HIGH.
func (c *Config) Safety() (llm.SafetyConfig, error) {
	return llm.ParseSafety(c.Generation.Safety)
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	var errs []error
	if c.RetrievalK < 0 {
		errs = append(errs, fmt.Errorf("retrieval k must not be negative, got %d", c.RetrievalK))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.VectorStore.Collection == "" {
		errs = append(errs, errors.New("collection name is required"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	switch store.Type(c.VectorStore.Type) {
	case store.TypePostgres:
		if c.Database.DSN == "" && c.Database.InstanceName == "" {
			errs = append(errs, errors.New("postgres store requires DB_INSTANCE_NAME or DB_DSN"))
		}
	case store.TypeSQLite, store.TypeMySQL, store.TypeMSSQL:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("%s store requires DB_DSN", c.VectorStore.Type))
		}
	case store.TypeQdrant:
		if c.VectorStore.QdrantHost == "" {
			errs = append(errs, errors.New("qdrant store requires QDRANT_HOST"))
		}
		if c.LockRedisURL == "" {
			errs = append(errs, errors.New("qdrant store requires LOCK_REDIS_URL to serialize ingestion"))
		}
	case store.TypeMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown vector store %q", c.VectorStore.Type))
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "hashing":
	case "vertex", "openai":
		if foreignModel(embeddingModels, c.Embedding.Provider, c.Embedding.Model) {
			errs = append(errs, fmt.Errorf("embedding model %q is not served by provider %q", c.Embedding.Model, c.Embedding.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	switch strings.ToLower(c.Generation.Provider) {
	case "gemini", "openai":
		if foreignModel(generationModels, c.Generation.Provider, c.Generation.Model) {
			errs = append(errs, fmt.Errorf("generation model %q is not served by provider %q", c.Generation.Model, c.Generation.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generation provider %q", c.Generation.Provider))
	}
	if _, err := c.Safety(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

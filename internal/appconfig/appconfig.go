// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultEnvFile is the dotenv file read at startup when present.
	DefaultEnvFile = ".env"
	// EnvPrefix prefixes environment overrides, e.g. SEMSEARCH_VECTORSTORE_INDEXNAME.
	EnvPrefix = "SEMSEARCH"

	defaultRequestTimeout = 60 * time.Second
	defaultReadyTimeout   = 120 * time.Second
)

// Embedding providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Vector store backends.
const (
	BackendPinecone = "pinecone"
	BackendSQLite   = "sqlite"
)

// Chunking strategies.
const (
	StrategyRecursive = "recursive"
	StrategyWords     = "words"
)

// Config represents the top-level application configuration.
type Config struct {
	Debug          bool              `json:"debug" mapstructure:"debug"`
	LogFile        string            `json:"logFile,omitempty" mapstructure:"logFile"`
	TimeoutSeconds int               `json:"timeout" mapstructure:"timeout"`
	Embedding      EmbeddingConfig   `json:"embedding" mapstructure:"embedding"`
	VectorStore    VectorStoreConfig `json:"vectorStore" mapstructure:"vectorStore"`
	Chunking       ChunkingConfig    `json:"chunking" mapstructure:"chunking"`
	Documents      DocumentsConfig   `json:"documents" mapstructure:"documents"`
	Server         ServerConfig      `json:"server" mapstructure:"server"`
	Search         SearchConfig      `json:"search" mapstructure:"search"`
	ConfigPath     string            `json:"-" mapstructure:"-"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider         string `json:"provider" mapstructure:"provider"`
	Model            string `json:"model" mapstructure:"model"`
	APIKey           string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	BaseURL          string `json:"baseURL,omitempty" mapstructure:"baseURL"`
	Dimensions       int    `json:"dimensions" mapstructure:"dimensions"`
	DocumentTaskType string `json:"documentTaskType" mapstructure:"documentTaskType"`
	QueryTaskType    string `json:"queryTaskType" mapstructure:"queryTaskType"`
	BatchSize        int    `json:"batchSize" mapstructure:"batchSize"`
	CacheSize        int    `json:"cacheSize" mapstructure:"cacheSize"`
	MaxRetries       int    `json:"maxRetries" mapstructure:"maxRetries"`
}

// VectorStoreConfig selects the vector database and the index it manages.
type VectorStoreConfig struct {
	Backend             string `json:"backend" mapstructure:"backend"`
	APIKey              string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	IndexName           string `json:"indexName" mapstructure:"indexName"`
	Metric              string `json:"metric" mapstructure:"metric"`
	Cloud               string `json:"cloud" mapstructure:"cloud"`
	Region              string `json:"region" mapstructure:"region"`
	ControlPlaneURL     string `json:"controlPlaneURL" mapstructure:"controlPlaneURL"`
	Namespace           string `json:"namespace,omitempty" mapstructure:"namespace"`
	SQLitePath          string `json:"sqlitePath" mapstructure:"sqlitePath"`
	UpsertBatchSize     int    `json:"upsertBatchSize" mapstructure:"upsertBatchSize"`
	ReadyTimeoutSeconds int    `json:"readyTimeout" mapstructure:"readyTimeout"`
	MaxRetries          int    `json:"maxRetries" mapstructure:"maxRetries"`
}

// ChunkingConfig controls how documents are split before embedding.
type ChunkingConfig struct {
	Strategy   string   `json:"strategy" mapstructure:"strategy"`
	Size       int      `json:"size" mapstructure:"size"`
	Overlap    int      `json:"overlap" mapstructure:"overlap"`
	Separators []string `json:"separators" mapstructure:"separators"`
}

// DocumentsConfig controls which files are loaded.
type DocumentsConfig struct {
	AllowedExtensions []string `json:"allowedExtensions" mapstructure:"allowedExtensions"`
	DirectoryGlob     string   `json:"directoryGlob" mapstructure:"directoryGlob"`
	ExcludeGlobs      []string `json:"excludeGlobs" mapstructure:"excludeGlobs"`
}

// ServerConfig configures the web dashboard.
type ServerConfig struct {
	Addr        string `json:"addr" mapstructure:"addr"`
	UploadDir   string `json:"uploadDir" mapstructure:"uploadDir"`
	MaxUploadMB int    `json:"maxUploadMB" mapstructure:"maxUploadMB"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	TopK              int `json:"topK" mapstructure:"topK"`
	MaxTopK           int `json:"maxTopK" mapstructure:"maxTopK"`
	ContextTokenLimit int `json:"contextTokenLimit" mapstructure:"contextTokenLimit"`
}

// SetDefaults registers every key with its default so that viper's
// environment lookup and Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("logFile", "semsearch.log")
	v.SetDefault("timeout", int(defaultRequestTimeout.Seconds()))

	v.SetDefault("embedding.provider", ProviderGemini)
	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.apiKey", "")
	v.SetDefault("embedding.baseURL", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.documentTaskType", "RETRIEVAL_DOCUMENT")
	v.SetDefault("embedding.queryTaskType", "RETRIEVAL_QUERY")
	v.SetDefault("embedding.batchSize", 100)
	v.SetDefault("embedding.cacheSize", 256)
	v.SetDefault("embedding.maxRetries", 5)

	v.SetDefault("vectorStore.backend", BackendPinecone)
	v.SetDefault("vectorStore.apiKey", "")
	v.SetDefault("vectorStore.indexName", "semantic-search")
	v.SetDefault("vectorStore.metric", "cosine")
	v.SetDefault("vectorStore.cloud", "aws")
	v.SetDefault("vectorStore.region", "us-east-1")
	v.SetDefault("vectorStore.controlPlaneURL", "https://api.pinecone.io")
	v.SetDefault("vectorStore.namespace", "")
	v.SetDefault("vectorStore.sqlitePath", "data/semsearch.db")
	v.SetDefault("vectorStore.upsertBatchSize", 100)
	v.SetDefault("vectorStore.readyTimeout", int(defaultReadyTimeout.Seconds()))
	v.SetDefault("vectorStore.maxRetries", 3)

	v.SetDefault("chunking.strategy", StrategyRecursive)
	v.SetDefault("chunking.size", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("chunking.separators", []string{"\n\n", "\n", " ", ""})

	v.SetDefault("documents.allowedExtensions", []string{".pdf", ".txt", ".md"})
	v.SetDefault("documents.directoryGlob", "**/*.pdf")
	v.SetDefault("documents.excludeGlobs", []string{})

	v.SetDefault("server.addr", ":8501")
	v.SetDefault("server.uploadDir", "temp_uploads")
	v.SetDefault("server.maxUploadMB", 10)

	v.SetDefault("search.topK", 5)
	v.SetDefault("search.maxTopK", 20)
	v.SetDefault("search.contextTokenLimit", 0)
}

// BindEnv enables SEMSEARCH_* environment overrides for every registered key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Default returns the configuration with every default applied.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := unmarshal(v)
	return cfg
}

// FromViper materializes, resolves secrets for, and validates the merged
// viper state.
func FromViper(v *viper.Viper) (Config, error) {
	cfg, err := unmarshal(v)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.ResolveSecrets()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration file at path (DefaultConfigPath when empty)
// on top of the defaults and SEMSEARCH_* environment overrides. A missing
// file at the default path is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return LoadInto(v, path, path != "")
}

// LoadInto reads the configuration file at path into v, which already
// carries defaults, environment and flag bindings, and returns the merged,
// validated result. When explicit is false a missing file falls back to the
// defaults and ConfigPath is left empty.
func LoadInto(v *viper.Viper, path string, explicit bool) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")

	loaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return Config{}, fmt.Errorf("no configuration file found at %q", path)
			}
			loaded = false
		default:
			return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return Config{}, err
	}
	if !loaded {
		cfg.ConfigPath = ""
	}
	return cfg, nil
}

// ResolveSecrets fills API keys from the provider's conventional environment
// variables when the configuration does not set them explicitly.
func (c *Config) ResolveSecrets() {
	if strings.TrimSpace(c.Embedding.APIKey) == "" {
		c.Embedding.APIKey = os.Getenv(c.EmbeddingKeyEnv())
	}
	if strings.TrimSpace(c.VectorStore.APIKey) == "" && c.VectorStore.Backend == BackendPinecone {
		c.VectorStore.APIKey = os.Getenv("PINECONE_API_KEY")
	}
}

// EmbeddingKeyEnv names the environment variable holding the embedding API key.
func (c Config) EmbeddingKeyEnv() string {
	if c.Embedding.Provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GOOGLE_API_KEY"
}

// RequestTimeout returns the timeout duration for outbound HTTP requests.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReadyTimeout bounds how long index creation may take to become ready.
func (c Config) ReadyTimeout() time.Duration {
	if c.VectorStore.ReadyTimeoutSeconds <= 0 {
		return defaultReadyTimeout
	}
	return time.Duration(c.VectorStore.ReadyTimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "semsearch.log"
}

// MaxUploadBytes returns the dashboard upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	mb := c.Server.MaxUploadMB
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) << 20
}

// ClampTopK bounds k to [1, MaxTopK], substituting the default for k <= 0.
func (c Config) ClampTopK(k int) int {
	if k <= 0 {
		k = c.Search.TopK
	}
	if k <= 0 {
		k = 5
	}
	if c.Search.MaxTopK > 0 && k > c.Search.MaxTopK {
		k = c.Search.MaxTopK
	}
	return k
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MilvusConfig holds the connection and collection settings for the vector store.
type MilvusConfig struct {
	Address        string `yaml:"address"`        // Milvus server address
	CollectionName string `yaml:"collectionName"` // collection holding policy document chunks
	Dim            int    `yaml:"dim"`            // embedding dimensionality, must match the embedding model
	NList          int    `yaml:"nlist"`          // IVF_FLAT index nlist parameter
}

// RedisConfig holds the connection settings for the answer cache.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig holds the connection settings for the policy catalog database.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// MinIOConfig holds the connection settings for the document object store.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// DatabaseConfigs groups all backing-store configurations.
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	MinIO  MinIOConfig  `yaml:"minio"`
}

// GeminiConfig holds the settings for a Google Generative AI model.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // currently only "gemini"
	Gemini   GeminiConfig `yaml:"gemini"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // currently only "gemini"
	Gemini   GeminiConfig `yaml:"gemini"`
}

// AssistantConfig holds behavior knobs for the retrieval-augmented responder.
type AssistantConfig struct {
	// DisableAutoNarrow stops a category mentioned inline in the question
	// from overriding an explicit "all" filter selection. The override was
	// inconsistent across revisions of the product logic, so it is a config
	// switch rather than hard-wired behavior. Off by default: a single
	// detected category narrows the search.
	DisableAutoNarrow bool `yaml:"disableAutoNarrow"`
	TopK              int  `yaml:"topK"`            // max chunks retrieved per question
	FallbackLimit     int  `yaml:"fallbackLimit"`   // max policies enumerated in fallback answers
	ChunkSize         int  `yaml:"chunkSize"`       // words per document chunk
	ProviderTimeout   int  `yaml:"providerTimeout"` // seconds, per embed/complete call
	CacheTTL          int  `yaml:"cacheTTL"`        // seconds, answer cache entry lifetime
}

// AppInfo carries basic application identification.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App       AppInfo         `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Assistant AssistantConfig `yaml:"assistant"`
	Databases DatabaseConfigs `yaml:"databases"`
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Databases.Milvus.CollectionName == "" {
		c.Databases.Milvus.CollectionName = "policy_chunks"
	}
	if c.Databases.Milvus.Dim == 0 {
		c.Databases.Milvus.Dim = 768
	}
	if c.Databases.Milvus.NList == 0 {
		c.Databases.Milvus.NList = 128
	}
	if c.Assistant.TopK == 0 {
		c.Assistant.TopK = 10
	}
	if c.Assistant.FallbackLimit == 0 {
		c.Assistant.FallbackLimit = 5
	}
	if c.Assistant.ChunkSize == 0 {
		c.Assistant.ChunkSize = 1000
	}
	if c.Assistant.ProviderTimeout == 0 {
		c.Assistant.ProviderTimeout = 30
	}
	if c.Assistant.CacheTTL == 0 {
		c.Assistant.CacheTTL = 300
	}
}

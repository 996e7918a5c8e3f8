package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		APIKey                 string  `yaml:"api_key"`
		SecretsFile            string  `yaml:"secrets_file"`
		Model                  string  `yaml:"model"`
		EmbeddingModel         string  `yaml:"embedding_model"`
		MaxTokens              int     `yaml:"max_tokens"`
		ContextWindow          int     `yaml:"context_window"`
		Temperature            float64 `yaml:"temperature"`
		MaxToolRounds          int     `yaml:"max_tool_rounds"`
		DisableFunctionCalling bool    `yaml:"disable_function_calling"`
	} `yaml:"llm"`

	Database struct {
		URL          string `yaml:"url"`
		TableName    string `yaml:"table_name"`
		VectorDim    int    `yaml:"vector_dim"`
		BatchSize    int    `yaml:"batch_size"`
		EmbedWorkers int    `yaml:"embed_workers"`
	} `yaml:"database"`

	Retrieval struct {
		TopK         int     `yaml:"top_k"`
		MaxTopK      int     `yaml:"max_top_k"`
		DocumentTopK int     `yaml:"document_top_k"`
		MaxDistance  float32 `yaml:"max_distance"`
	} `yaml:"retrieval"`

	Scraper struct {
		MaxDepth          int      `yaml:"max_depth"`
		RateLimit         float64  `yaml:"rate_limit"`
		IgnorePatterns    []string `yaml:"ignore_patterns"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Processor struct {
		ChunkSize       int  `yaml:"chunk_size"`
		ChunkOverlap    int  `yaml:"chunk_overlap"`
		RemoveStopwords bool `yaml:"remove_stopwords"`
	} `yaml:"processor"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	UI struct {
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/wetkb/config.yaml"),
			"/etc/wetkb/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	applyDefaults(&config)
	mergeWithEnv(&config)
	resolveAPIKey(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	resolveAPIKey(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "gemini-1.5-flash"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "embedding-001"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2048
	}
	if config.LLM.ContextWindow == 0 {
		config.LLM.ContextWindow = 32768
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}
	if config.LLM.MaxToolRounds == 0 {
		config.LLM.MaxToolRounds = 4
	}
	if config.LLM.SecretsFile == "" {
		config.LLM.SecretsFile = "secrets.toml"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}
	if config.Database.EmbedWorkers == 0 {
		config.Database.EmbedWorkers = 4
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 8
	}
	if config.Retrieval.MaxTopK == 0 {
		config.Retrieval.MaxTopK = 15
	}
	if config.Retrieval.DocumentTopK == 0 {
		config.Retrieval.DocumentTopK = 5
	}
	if config.Retrieval.MaxDistance == 0 {
		config.Retrieval.MaxDistance = 0.8
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}

// resolveAPIKey fills LLM.APIKey in order of precedence: the config
// value itself, then the secrets file, then the GOOGLE_API_KEY
// environment variable.
func resolveAPIKey(config *Config) {
	if config.LLM.APIKey != "" {
		return
	}
	if key, err := readSecretsFile(config.LLM.SecretsFile); err == nil && key != "" {
		config.LLM.APIKey = key
		return
	}
	config.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
}

type secrets struct {
	GoogleAPIKey string `toml:"GOOGLE_API_KEY"`
}

func readSecretsFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no secrets file configured")
	}
	var s secrets
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return "", fmt.Errorf("error reading secrets file: %v", err)
	}
	return s.GoogleAPIKey, nil
}

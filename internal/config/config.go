package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Owner      string           `mapstructure:"owner"`
	Workers    int              `mapstructure:"workers"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Reader     ReaderConfig     `mapstructure:"reader"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Log        LogConfig        `mapstructure:"log"`
}

type LLMConfig struct {
	Provider   string            `mapstructure:"provider"`
	Model      string            `mapstructure:"model"`
	NanoModel  string            `mapstructure:"nano_model"`
	BaseURL    string            `mapstructure:"base_url"`
	APIVersion string            `mapstructure:"api_version"`
	APIKey     string            `mapstructure:"api_key"`
	Headers    map[string]string `mapstructure:"headers"`
	MaxTokens  int               `mapstructure:"max_tokens"`
	Timeout    time.Duration     `mapstructure:"timeout"`
}

type EmbeddingsConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BaseURL    string `mapstructure:"base_url"`
	APIVersion string `mapstructure:"api_version"`
	APIKey     string `mapstructure:"api_key"`
}

// ReaderConfig configures the remote content-reader service. An empty APIKey
// disables the remote strategy.
type ReaderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ScraperConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

const (
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	DefaultReaderURL = "https://r.jina.ai/"
)

func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	// A missing .env is fine
	_ = godotenv.Load()

	defaultDataDir := filepath.Join(homeDir, ".markly")

	v := viper.New()
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("owner", defaultOwner())
	v.SetDefault("workers", 3)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_version", "2024-12-01-preview")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("embeddings.provider", "openai")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.dimensions", 1536)
	v.SetDefault("embeddings.api_version", "2024-12-01-preview")
	v.SetDefault("reader.base_url", DefaultReaderURL)
	v.SetDefault("scraper.timeout", 15*time.Second)
	v.SetDefault("scraper.user_agent", DefaultUserAgent)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Environment variable overrides
	v.SetEnvPrefix("MARKLY")
	v.AutomaticEnv()
	v.BindEnv("data_dir", "MARKLY_DATA_DIR")
	v.BindEnv("owner", "MARKLY_OWNER")
	v.BindEnv("llm.provider", "MARKLY_LLM_PROVIDER")
	v.BindEnv("llm.model", "MARKLY_LLM_MODEL")
	v.BindEnv("llm.nano_model", "MARKLY_LLM_NANO_MODEL")
	v.BindEnv("llm.base_url", "MARKLY_LLM_BASE_URL", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("embeddings.model", "MARKLY_EMBEDDINGS_MODEL")
	v.BindEnv("reader.api_key", "MARKLY_READER_API_KEY", "JINA_READER_API_KEY")
	v.BindEnv("log.level", "MARKLY_LOG_LEVEL")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultDataDir)

	// Read config file if exists (ignore error if not found)
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.applyKeyFallbacks()

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyKeyFallbacks fills API keys from the provider's conventional variables.
func (c *Config) applyKeyFallbacks() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(keyEnvFor(c.LLM.Provider))
	}
	if c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = os.Getenv(keyEnvFor(c.Embeddings.Provider))
	}
	if c.Embeddings.BaseURL == "" && c.Embeddings.Provider == c.LLM.Provider {
		c.Embeddings.BaseURL = c.LLM.BaseURL
	}
}

func keyEnvFor(provider string) string {
	switch provider {
	case "azure":
		return "AZURE_OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func defaultOwner() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "markly.db")
}

func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "markly.log")
}

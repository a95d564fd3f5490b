package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider     string  `yaml:"provider"`
		Model        string  `yaml:"model"`
		BaseURL      string  `yaml:"base_url"`
		APIKey       string  `yaml:"api_key"`
		MaxTokens    int     `yaml:"max_tokens"`
		Temperature  float64 `yaml:"temperature"`
		SystemPrompt string  `yaml:"system_prompt"`
	} `yaml:"llm"`

	Server struct {
		Port           string   `yaml:"port"`
		AuthToken      string   `yaml:"auth_token"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RateLimit      float64  `yaml:"rate_limit"`
		RateBurst      int      `yaml:"rate_burst"`
		MaxBodyMB      int      `yaml:"max_body_mb"`
	} `yaml:"server"`

	History struct {
		DatabaseURL  string `yaml:"database_url"`
		VectorDim    int    `yaml:"vector_dim"`
		SearchLimit  int    `yaml:"search_limit"`
		EmbedModel   string `yaml:"embed_model"`
		EmbedBaseURL string `yaml:"embed_base_url"`
	} `yaml:"history"`

	UI struct {
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
		WordWrap  int    `yaml:"word_wrap"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/parley/config.yaml"),
			"/etc/parley/config.yaml",
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

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	// Streaming is on unless a config file turns it off.
	config.UI.Streaming = true
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}
	if config.Server.RateLimit == 0 {
		config.Server.RateLimit = 5
	}
	if config.Server.RateBurst == 0 {
		config.Server.RateBurst = 10
	}
	if config.Server.MaxBodyMB == 0 {
		config.Server.MaxBodyMB = 25
	}

	if config.History.VectorDim == 0 {
		config.History.VectorDim = 768
	}
	if config.History.SearchLimit == 0 {
		config.History.SearchLimit = 5
	}
	if config.History.EmbedBaseURL == "" {
		config.History.EmbedBaseURL = "http://localhost:11434"
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "auto"
	}
	if config.UI.WordWrap == 0 {
		config.UI.WordWrap = 80
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.History.DatabaseURL = dbURL
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.LLM.Provider == "anthropic" {
		config.LLM.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.LLM.Provider == "openai" {
		config.LLM.APIKey = key
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}

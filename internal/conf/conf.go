package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration, loaded from the environment.
type Config struct {
	// Feishu gateway configuration
	Feishu FeishuConfig

	// LLM endpoint configuration
	LLM LLMConfig

	// Web search endpoint configuration
	Search SearchConfig

	// Durable store configuration
	Store StoreConfig

	// Conversation history configuration
	History HistoryConfig

	// Admin/ops HTTP API configuration
	API APIConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu app credentials and the owner identity.
type FeishuConfig struct {
	AppID     string
	AppSecret string
	// OwnerID is the open_id allowed to run moderation admin commands.
	OwnerID string
}

// LLMConfig contains generation endpoint configuration.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// SearchConfig contains the retrieval endpoint configuration. An empty
// BaseURL disables the augmentation round.
type SearchConfig struct {
	BaseURL string
}

// StoreConfig contains durable store configuration.
type StoreConfig struct {
	DBPath string
}

// HistoryConfig contains the per-conversation window cap.
type HistoryConfig struct {
	WindowSize int
}

// APIConfig contains the admin/ops HTTP API configuration.
type APIConfig struct {
	Port int
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	dbPath := os.Getenv("ASSISTANT_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".feishu-assistant", "assistant.db")
	}

	windowSize := 50
	if val := os.Getenv("HISTORY_WINDOW_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			windowSize = parsed
		}
	}

	llmTimeout := 120
	if val := os.Getenv("LLM_TIMEOUT_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			llmTimeout = parsed
		}
	}

	apiPort := 9876
	if val := os.Getenv("API_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			apiPort = parsed
		}
	}

	promptsConfig, _ := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
			OwnerID:   os.Getenv("OWNER_OPEN_ID"),
		},
		LLM: LLMConfig{
			BaseURL:     os.Getenv("LLM_BASE_URL"),
			APIKey:      os.Getenv("LLM_API_KEY"),
			Model:       os.Getenv("LLM_MODEL"),
			VisionModel: os.Getenv("LLM_VISION_MODEL"),
			Timeout:     time.Duration(llmTimeout) * time.Second,
		},
		Search: SearchConfig{
			BaseURL: os.Getenv("SEARCH_BASE_URL"),
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		History: HistoryConfig{
			WindowSize: windowSize,
		},
		API: APIConfig{
			Port: apiPort,
		},
		Prompts: promptsConfig,
		Debug:   os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

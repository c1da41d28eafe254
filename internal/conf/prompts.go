package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tealbridge/feishu-assistant/internal/biz/usecase"
)

// PromptsConfig contains the prompt templates loaded from YAML.
type PromptsConfig struct {
	Assistant AssistantPrompts `yaml:"assistant"`
}

// AssistantPrompts contains the generation prompt templates.
type AssistantPrompts struct {
	SystemPrompt   string `yaml:"system_prompt"`
	VisionPrompt   string `yaml:"vision_prompt"`
	SearchGuidance string `yaml:"search_guidance"`
}

// LoadPromptsConfig loads prompt templates from a YAML file. With an empty
// path it tries the usual locations and silently falls back to the compiled
// defaults when nothing is found.
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/feishu-assistant/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if b, err := os.ReadFile(p); err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		fmt.Println("[Config] No prompts.yaml found, using defaults")
		return &PromptsConfig{}, nil
	}

	fmt.Printf("[Config] Loading prompts from: %s\n", loadedPath)

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}
	return &config, nil
}

// ToPromptConfig converts the YAML templates to the usecase prompt config.
// Empty fields fall back to usecase.DefaultPromptConfig inside the builder.
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	if c.Prompts == nil {
		return usecase.PromptConfig{}
	}
	return usecase.PromptConfig{
		SystemPrompt:   c.Prompts.Assistant.SystemPrompt,
		VisionPrompt:   c.Prompts.Assistant.VisionPrompt,
		SearchGuidance: c.Prompts.Assistant.SearchGuidance,
	}
}

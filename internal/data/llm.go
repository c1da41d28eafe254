package data

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultGenerateTimeout = 120 * time.Second
	defaultModel           = "qwen2.5:14b"
)

// LLMClient talks to an OpenAI-compatible completion endpoint (Ollama's
// /v1 surface, Moonshot, or anything else speaking the same protocol).
// It implements repo.GenerateRepo. Streaming is never requested: the whole
// completion is read before the orchestrator proceeds.
type LLMClient struct {
	client      *openai.Client
	model       string
	visionModel string
	timeout     time.Duration
}

// NewLLMClient creates a generation client. baseURL selects the endpoint
// (for example http://localhost:11434/v1 for Ollama); an empty visionModel
// falls back to model for the image path.
func NewLLMClient(baseURL, apiKey, model, visionModel string, timeout time.Duration) *LLMClient {
	if model == "" {
		model = defaultModel
	}
	if visionModel == "" {
		visionModel = model
	}
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &LLMClient{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		visionModel: visionModel,
		timeout:     timeout,
	}
}

// Generate runs one non-streaming completion for a rendered prompt.
func (c *LLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices")
	}
	return resp.Choices[0].Text, nil
}

// Describe runs one non-streaming vision completion for a prompt plus a
// base64-encoded image.
func (c *LLMClient) Describe(ctx context.Context, prompt, imageBase64 string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:  c.visionModel,
		Stream: false,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/png;base64," + imageBase64,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices")
	}
	return resp.Choices[0].Message.Content, nil
}

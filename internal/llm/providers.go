package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sarathavasarala/markly/internal/config"
	"github.com/sashabaranov/go-openai"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// ErrNoChoices is returned when the model answers with nothing.
var ErrNoChoices = errors.New("model returned no choices")

// chatClient sends one system+user exchange and returns the reply text.
type chatClient interface {
	Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, error)
}

func newChatClient(cfg config.LLMConfig) (chatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set for provider %s", cfg.Provider)
	}

	switch cfg.Provider {
	case "anthropic":
		var opts []anthropic.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return &anthropicChat{client: anthropic.NewClient(cfg.APIKey, opts...)}, nil
	case "openai", "azure", "openrouter", "":
		clientCfg := openAIConfig(cfg.Provider, cfg.APIKey, cfg.BaseURL, cfg.APIVersion)
		if len(cfg.Headers) > 0 {
			clientCfg.HTTPClient = &http.Client{Transport: &headerTransport{headers: cfg.Headers, base: http.DefaultTransport}}
		}
		return &openAIChat{
			client:          openai.NewClientWithConfig(clientCfg),
			completionLimit: cfg.Provider != "openrouter",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// openAIConfig builds a go-openai config for OpenAI, Azure OpenAI or any
// OpenAI-compatible endpoint.
func openAIConfig(provider, apiKey, baseURL, apiVersion string) openai.ClientConfig {
	switch provider {
	case "azure":
		cfg := openai.DefaultAzureConfig(apiKey, cleanAzureEndpoint(baseURL))
		if apiVersion != "" {
			cfg.APIVersion = apiVersion
		}
		// Models are configured as deployment names already.
		cfg.AzureModelMapperFunc = func(model string) string { return model }
		return cfg
	case "openrouter":
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = openRouterURL
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return cfg
	default:
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return cfg
	}
}

// cleanAzureEndpoint strips the /openai and /v1 suffixes people paste from the
// portal; go-openai adds its own.
func cleanAzureEndpoint(endpoint string) string {
	cleaned := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	cleaned = strings.TrimSuffix(cleaned, "/v1")
	cleaned = strings.TrimSuffix(cleaned, "/openai")
	return cleaned
}

type openAIChat struct {
	client *openai.Client
	// completionLimit sends max_completion_tokens instead of max_tokens.
	completionLimit bool
}

func (c *openAIChat) Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	if c.completionLimit {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

type anthropicChat struct {
	client *anthropic.Client
}

func (c *anthropicChat) Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    system,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}},
			},
		},
	})

	if err != nil {
		return "", err
	}

	if len(resp.Content) == 0 {
		return "", ErrNoChoices
	}

	return resp.Content[0].GetText(), nil
}

// headerTransport adds fixed headers (OpenRouter's HTTP-Referer, X-Title) to
// every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

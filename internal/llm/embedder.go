package llm

import (
	"context"
	"fmt"

	"github.com/sarathavasarala/markly/internal/config"
	"github.com/sarathavasarala/markly/internal/textutil"
	"github.com/sashabaranov/go-openai"
)

// MaxEmbeddingInput caps the characters sent to the embedding model.
const MaxEmbeddingInput = 30000

// Embedder generates text embeddings
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewEmbedder(cfg config.EmbeddingsConfig) (*Embedder, error) {
	if cfg.Provider == "anthropic" {
		return nil, fmt.Errorf("provider %s has no embeddings endpoint", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key not set for embeddings provider %s", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(openAIConfig(cfg.Provider, cfg.APIKey, cfg.BaseURL, cfg.APIVersion)),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed generates the embedding for text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{textutil.Truncate(text, MaxEmbeddingInput)},
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return resp.Data[0].Embedding, nil
}

// Package embeddings provides embedding generation for the article cache
// via langchaingo's OpenAI-compatible client. Any endpoint speaking the
// OpenAI embeddings API works, including local TEI servers.
package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/evidenced/internal/config"
)

// Service generates vector embeddings for text.
type Service struct {
	embedder *embeddings.EmbedderImpl
	config   config.EmbeddingConfig
}

// New creates an embedding service from configuration.
func New(cfg config.EmbeddingConfig) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	// langchaingo requires a token; TEI-style servers ignore it.
	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{embedder: embedder, config: cfg}, nil
}

// Embedder returns the underlying langchaingo Embedder for use with the
// vector store.
func (s *Service) Embedder() embeddings.Embedder {
	return s.embedder
}

// Embed generates one vector per input text.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// Package memstore caches anonymized evidence excerpts in an embedded
// vector store so repeated questions can be answered without a live
// literature search.
//
// The cache is session-independent: excerpts are keyed by their source
// document, not by who asked. A nil *Store disables the fast path.
package memstore

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/sanitize"
)

// Config holds cache configuration.
type Config struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Collection names the article collection.
	Collection string

	// TopK bounds how many hits a search returns.
	TopK int

	// Threshold is the minimum cosine similarity for a hit to count.
	Threshold float32

	// Compress enables gzip compression of persisted data.
	Compress bool
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "articles"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Threshold == 0 {
		c.Threshold = 0.75
	}
}

// Entry is one cached excerpt.
type Entry struct {
	ID         string
	Text       string
	DocumentID string
	Section    string
}

// Hit is a cache match with its similarity score.
type Hit struct {
	Entry
	Score float32
}

// Store is a chromem-go backed excerpt cache.
type Store struct {
	db       *chromem.DB
	embedder embeddings.Embedder
	config   Config
	logger   *zap.Logger
}

// New creates a Store. An empty Path keeps the cache in memory.
func New(cfg Config, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	cfg.Collection = sanitize.Identifier(cfg.Collection)

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
	}

	store := &Store{
		db:       db,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}

	logger.Info("article cache initialized",
		zap.String("collection", cfg.Collection),
		zap.Bool("persistent", cfg.Path != ""),
		zap.Int("top_k", cfg.TopK),
		zap.Float32("threshold", cfg.Threshold),
	)
	return store, nil
}

// embeddingFunc adapts the embedder to chromem's query-time interface.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *Store) collection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", s.config.Collection, err)
	}
	return col, nil
}

// Add stores entries in the cache. Entries without an ID are rejected so
// re-adding the same excerpt stays idempotent.
func (s *Store) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d has no ID", i)
		}
		texts[i] = e.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding entries: %w", err)
	}
	if len(vectors) != len(entries) {
		return fmt.Errorf("embedder returned %d vectors for %d entries", len(vectors), len(entries))
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:      e.ID,
			Content: e.Text,
			Metadata: map[string]string{
				"document_id": e.DocumentID,
				"section":     e.Section,
			},
			Embedding: vectors[i],
		}
	}

	col, err := s.collection()
	if err != nil {
		return err
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding entries: %w", err)
	}

	s.logger.Debug("cached excerpts", zap.Int("count", len(entries)))
	return nil
}

// Search returns cached excerpts similar to the query, best first. Hits
// below the similarity threshold are dropped; an empty result means the
// caller should fall back to live retrieval.
func (s *Store) Search(ctx context.Context, query string) ([]Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	k := s.config.TopK
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying cache: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.config.Threshold {
			continue
		}
		hits = append(hits, Hit{
			Entry: Entry{
				ID:         r.ID,
				Text:       r.Content,
				DocumentID: r.Metadata["document_id"],
				Section:    r.Metadata["section"],
			},
			Score: r.Similarity,
		})
	}

	s.logger.Debug("cache search",
		zap.Int("hits", len(hits)),
		zap.Int("candidates", len(results)),
	)
	return hits, nil
}

// Count reports how many excerpts the cache holds.
func (s *Store) Count() (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

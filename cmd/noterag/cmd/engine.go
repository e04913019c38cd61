package cmd

import (
	"fmt"
	"log/slog"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/embed"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/llm"
	"github.com/noterag/noterag/internal/search"
	"github.com/noterag/noterag/internal/store"
)

// engine bundles the wired retrieval components. Every command needs
// the same stack (stores, embedder, searcher, indexer), so the wiring
// lives here rather than being repeated per command.
type engine struct {
	cfg      *config.Config
	vectors  store.VectorStore
	fts      store.FTSStore // nil when the keyword index failed to open
	embedder embed.Embedder
	searcher *search.Searcher
	indexer  *index.Indexer
	jobs     *index.Manager
}

// openEngine loads the configuration and opens the full component
// stack. The FTS store is best-effort: an open failure logs a warning
// and search degrades to its vector branch. Commands that write the
// keyword index should check engine.fts themselves.
func openEngine() (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return openEngineWith(cfg)
}

// openEngineWith wires the stack for an already-loaded configuration.
func openEngineWith(cfg *config.Config) (*engine, error) {
	vectors, err := store.NewHNSWStore(cfg.DataDir, store.DefaultVectorConfig(cfg.Embedding.Dimension))
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	fts, err := store.NewFTSStore(cfg.DataDir, cfg.FTS.Backend)
	if err != nil {
		slog.Warn("fts_unavailable",
			slog.String("backend", cfg.FTS.Backend),
			slog.String("error", err.Error()))
		fts = nil
	}

	embedder := embed.NewCachedEmbedder(embed.NewOllamaEmbedder(embed.OllamaConfig{
		Host:       cfg.Embedding.OllamaURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimension,
		Timeout:    cfg.EmbedTimeout(),
	}), cfg.Embedding.CacheSize)

	opts := make([]search.SearcherOption, 0, 3)
	if fts != nil {
		opts = append(opts, search.WithFTS(fts))
	}

	judge := llm.NewOllamaClient(cfg.Embedding.OllamaURL, cfg.Rerank.Model, cfg.RerankTimeout())
	opts = append(opts, search.WithReranker(
		search.NewReranker(judge, cfg.Rerank.TopK, cfg.Rerank.Concurrency)))

	if cfg.Answer.GatewayURL != "" {
		opts = append(opts, search.WithAnswerer(
			llm.NewGatewayClient(cfg.Answer.GatewayURL, cfg.Answer.Token, cfg.Answer.Model, cfg.AnswerTimeout())))
	}

	searcher, err := search.NewSearcher(cfg, vectors, embedder, opts...)
	if err != nil {
		closeQuietly(vectors, fts, embedder)
		return nil, fmt.Errorf("create searcher: %w", err)
	}

	indexer, err := index.NewIndexer(index.Deps{
		Config:   cfg,
		Vectors:  vectors,
		FTS:      fts,
		Embedder: embedder,
	})
	if err != nil {
		closeQuietly(vectors, fts, embedder)
		return nil, fmt.Errorf("create indexer: %w", err)
	}

	return &engine{
		cfg:      cfg,
		vectors:  vectors,
		fts:      fts,
		embedder: embedder,
		searcher: searcher,
		indexer:  indexer,
		jobs:     index.NewManager(indexer),
	}, nil
}

// Close releases the stores and network clients.
func (e *engine) Close() {
	closeQuietly(e.vectors, e.fts, e.embedder)
}

type closer interface{ Close() error }

func closeQuietly(cs ...closer) {
	for _, c := range cs {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			slog.Debug("close_failed", slog.String("error", err.Error()))
		}
	}
}

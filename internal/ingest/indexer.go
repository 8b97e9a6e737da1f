package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/vectorindex"
)

var ErrNoDocuments = errors.New("no documents found in materials or question_bank")

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingModel() string
}

type Indexer struct {
	embedder     Embedder
	log          *logger.Logger
	ChunkSize    int
	ChunkOverlap int
}

func NewIndexer(embedder Embedder, log *logger.Logger) *Indexer {
	return &Indexer{
		embedder:     embedder,
		log:          log,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// IndexFolder rebuilds folder's vector index and returns the number of chunks stored.
func (ix *Indexer) IndexFolder(ctx context.Context, folder string) (int, error) {
	if ix.embedder == nil {
		return 0, errors.New("indexer has no embedder configured")
	}
	started := time.Now()

	docs, err := LoadFolder(folder)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, ErrNoDocuments
	}

	var chunks []vectorindex.Chunk
	for _, d := range docs {
		for _, text := range SplitText(d.Text, ix.ChunkSize, ix.ChunkOverlap) {
			chunks = append(chunks, vectorindex.Chunk{Source: d.Source, Content: text})
		}
	}
	ix.log.Info("Loaded documents", "folder", folder, "documents", len(docs), "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := vectorindex.Build(ctx, folder, ix.embedder.EmbeddingModel(), chunks); err != nil {
		return 0, err
	}
	ix.log.Info("Vector index built", "folder", folder, "chunks", len(chunks), "duration", time.Since(started))
	return len(chunks), nil
}

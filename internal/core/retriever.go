package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/virtual-ta/ta-backend/internal/store"
	"github.com/virtual-ta/ta-backend/internal/vectorindex"
)

// NumRelevantChunks is the number of chunks returned per retrieval.
const NumRelevantChunks = 3

// RetrieverResolver maps a chapter name to a search capability over that
// chapter's vector index. Only registered, active chapters resolve.
type RetrieverResolver struct {
	store    *store.SQLiteStore
	embedder QueryEmbedder
}

func NewRetrieverResolver(db *store.SQLiteStore, embedder QueryEmbedder) *RetrieverResolver {
	return &RetrieverResolver{store: db, embedder: embedder}
}

type Retriever struct {
	Chapter  *store.Chapter
	embedder QueryEmbedder
	k        int
}

func (r *RetrieverResolver) Resolve(ctx context.Context, chapterName string) (*Retriever, error) {
	chapterName = strings.TrimSpace(chapterName)
	if chapterName == "" {
		return nil, fmt.Errorf("%w: chapter is required", ErrValidation)
	}
	chapter, err := r.store.GetActiveChapterByName(ctx, chapterName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: chapter '%s'", ErrNotFound, chapterName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up chapter: %w", err)
	}

	info, err := os.Stat(chapter.FolderPath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: knowledge base folder for chapter '%s'", ErrNotFound, chapterName)
	}
	if _, err := os.Stat(vectorindex.Path(chapter.FolderPath)); err != nil {
		return nil, fmt.Errorf("%w: vector index for chapter '%s'", ErrNotFound, chapterName)
	}
	return &Retriever{Chapter: chapter, embedder: r.embedder, k: NumRelevantChunks}, nil
}

// Retrieve returns the chunks most similar to query. The index is opened and
// closed on every call.
func (rt *Retriever) Retrieve(ctx context.Context, query string) ([]vectorindex.ScoredChunk, error) {
	if rt.embedder == nil {
		return nil, ErrUnavailable
	}
	vec, err := rt.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	ix, err := vectorindex.Open(rt.Chapter.FolderPath)
	if errors.Is(err, vectorindex.ErrNoIndex) {
		return nil, fmt.Errorf("%w: vector index for chapter '%s'", ErrNotFound, rt.Chapter.Name)
	}
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	return ix.Search(ctx, vec, rt.k)
}

// formatContext joins retrieved chunks, labelling each with its source file.
func formatContext(chunks []vectorindex.ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source: %s]\n%s", c.Source, c.Content)
	}
	return b.String()
}

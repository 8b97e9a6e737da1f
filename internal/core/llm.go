package core

import "context"

// Generator is the text-generation side of the language model.
type Generator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FolderIndexer rebuilds the vector index of a chapter folder.
type FolderIndexer interface {
	IndexFolder(ctx context.Context, folder string) (int, error)
}

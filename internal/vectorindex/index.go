// Package vectorindex stores a chapter's embedded text chunks in a SQLite file
// inside the chapter folder and answers top-k cosine similarity queries over it.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// FileName is the index file created inside each chapter folder.
const FileName = "index.db"

// ErrNoIndex is returned by Open when the folder has no index file.
var ErrNoIndex = errors.New("vector index not found")

type Chunk struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"` // path relative to the chapter folder
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

type ScoredChunk struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

type Index struct {
	db   *sql.DB
	path string
}

// Path returns the index file location for a chapter folder.
func Path(folder string) string {
	return filepath.Join(folder, FileName)
}

// Open opens the index in folder read-only.
func Open(folder string) (*Index, error) {
	path := Path(folder)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoIndex, path)
		}
		return nil, fmt.Errorf("failed to stat index %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNoIndex, path)
	}

	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	return &Index{db: db, path: path}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Search returns the k chunks most similar to query, best first.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT id, source, content, embedding_json FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var scored []ScoredChunk
	for rows.Next() {
		var c Chunk
		var embeddingJSON string
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil || len(c.Embedding) == 0 {
			continue
		}
		sim, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.ID, err)
		}
		scored = append(scored, ScoredChunk{Chunk: c, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count returns the number of stored chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Build writes a fresh index for folder. The file is assembled under a temporary
// name and renamed into place, so readers never see a half-written index.
func Build(ctx context.Context, folder, embeddingModel string, chunks []Chunk) error {
	tmp := filepath.Join(folder, FileName+".tmp-"+uuid.NewString())
	defer os.Remove(tmp)

	if err := writeIndex(ctx, tmp, embeddingModel, chunks); err != nil {
		return err
	}
	if err := os.Rename(tmp, Path(folder)); err != nil {
		return fmt.Errorf("failed to install index: %w", err)
	}
	return nil
}

func writeIndex(ctx context.Context, path, embeddingModel string, chunks []Chunk) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer db.Close()

	schema := `
    CREATE TABLE chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        source TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT NOT NULL -- JSON array of float32
    );
    CREATE TABLE meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (source, content, embedding_json) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		embeddingBytes, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for chunk %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, c.Source, c.Content, string(embeddingBytes)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	meta := map[string]string{
		"embedding_model": embeddingModel,
		"built_at":        time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write index meta: %w", err)
		}
	}
	return tx.Commit()
}

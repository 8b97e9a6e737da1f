package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
	"github.com/virtual-ta/ta-backend/internal/vectorindex"
)

type fakeLLM struct {
	mu      sync.Mutex
	text    string
	json    string
	err     error
	prompts []string
}

func (f *fakeLLM) GenerateText(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.json, f.err
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// fakeEmbedder maps every query onto the same axis as the first test chunk.
type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeIndexer struct {
	chunks  int
	err     error
	folders []string
}

func (f *fakeIndexer) IndexFolder(_ context.Context, folder string) (int, error) {
	f.folders = append(f.folders, folder)
	return f.chunks, f.err
}

var errBoom = errors.New("boom")

type fixture struct {
	store *store.SQLiteStore
	root  string
	user  *store.User
	other *store.User
	log   *logger.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	user, err := db.UpsertLoginUser(ctx, "student@school.edu", "Student", "", store.RoleUser)
	require.NoError(t, err)
	other, err := db.UpsertLoginUser(ctx, "other@school.edu", "Other", "", store.RoleUser)
	require.NoError(t, err)

	return &fixture{store: db, root: t.TempDir(), user: user, other: other, log: logger.NewNop()}
}

// addIndexedChapter registers an active chapter whose folder holds a small index.
func (f *fixture) addIndexedChapter(t *testing.T, name string) *store.Chapter {
	t.Helper()
	folder := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, vectorindex.Build(context.Background(), folder, "fake", []vectorindex.Chunk{
		{Source: "materials/loss.md", Content: "The loss function measures prediction error.", Embedding: []float32{1, 0, 0}},
		{Source: "materials/optim.md", Content: "Gradient descent follows the negative gradient.", Embedding: []float32{0.8, 0.2, 0}},
		{Source: "materials/data.md", Content: "Training data should be shuffled.", Embedding: []float32{0, 1, 0}},
		{Source: "question_bank/q.md", Content: "Unrelated trivia.", Embedding: []float32{0, 0, 1}},
	}))
	c := &store.Chapter{Name: name, DisplayName: name, FolderPath: folder, IsActive: true}
	require.NoError(t, f.store.CreateChapter(context.Background(), c))
	return c
}

package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtual-ta/ta-backend/internal/store"
)

func TestAnswerUsesContextAndLogsQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addIndexedChapter(t, "chapter1")
	require.NoError(t, f.store.CreateResource(ctx, &store.ExternalResource{
		URL: "https://videos.example/loss", Title: "Loss functions explained", Tags: "chapter1,loss",
	}))
	require.NoError(t, f.store.CreateResource(ctx, &store.ExternalResource{
		URL: "https://videos.example/other", Title: "Unrelated talk", Tags: "chapter9",
	}))

	llm := &fakeLLM{text: "It measures prediction error [materials/loss.md]."}
	svc := NewAnswerService(f.store, NewRetrieverResolver(f.store, fakeEmbedder{}), llm, f.log)

	answer, err := svc.Answer(ctx, f.user, "chapter1", "  What is a loss function?  ")
	require.NoError(t, err)
	assert.Equal(t, "It measures prediction error [materials/loss.md].", answer)

	prompt := llm.lastPrompt()
	assert.Contains(t, prompt, "The loss function measures prediction error.")
	assert.Contains(t, prompt, "[Source: materials/loss.md]")
	assert.Contains(t, prompt, "Loss functions explained")
	assert.NotContains(t, prompt, "Unrelated talk")
	assert.Contains(t, prompt, "What is a loss function?")

	logs, err := f.store.ListRecentQueryLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, f.user.ID, logs[0].UserID)
	assert.Equal(t, "chapter1", logs[0].Chapter)
	assert.Equal(t, "What is a loss function?", logs[0].Question)
	assert.Equal(t, answer, logs[0].Answer)
}

func TestAnswerErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addIndexedChapter(t, "chapter1")
	resolver := NewRetrieverResolver(f.store, fakeEmbedder{})

	svc := NewAnswerService(f.store, resolver, &fakeLLM{text: "x"}, f.log)
	_, err := svc.Answer(ctx, f.user, "chapter1", "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Answer(ctx, f.user, "missing", "q")
	assert.ErrorIs(t, err, ErrNotFound)

	failing := NewAnswerService(f.store, resolver, &fakeLLM{err: errBoom}, f.log)
	_, err = failing.Answer(ctx, f.user, "chapter1", "q")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, errBoom)

	unconfigured := NewAnswerService(f.store, resolver, nil, f.log)
	_, err = unconfigured.Answer(ctx, f.user, "chapter1", "q")
	assert.ErrorIs(t, err, ErrUnavailable)

	logs, err := f.store.ListRecentQueryLogs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs, "failed answers are not logged")
}

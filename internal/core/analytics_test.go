package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtual-ta/ta-backend/internal/store"
)

func attempts(scores map[string][]float64) []store.QuizAttempt {
	var out []store.QuizAttempt
	for topic, ss := range scores {
		for _, s := range ss {
			out = append(out, store.QuizAttempt{Topic: topic, Score: s})
		}
	}
	return out
}

func TestWeakestTopics(t *testing.T) {
	got := weakestTopics(attempts(map[string][]float64{
		"loss":       {40, 60},  // 50
		"gradients":  {100, 20}, // 60
		"regression": {70},      // exactly the threshold, not weak
		"data":       {90, 80},
		"bias":       {10},
		"variance":   {69.9},
	}), 3)

	require.Len(t, got, 3)
	assert.Equal(t, "bias", got[0].Topic)
	assert.Equal(t, "loss", got[1].Topic)
	assert.Equal(t, 50.0, got[1].AverageScore)
	assert.Equal(t, 2, got[1].Attempts)
	assert.Equal(t, "gradients", got[2].Topic)
	for _, ts := range got {
		assert.Less(t, ts.AverageScore, WeakTopicThreshold)
	}

	all := weakestTopics(attempts(map[string][]float64{"a": {100}, "b": {70, 70}}), 3)
	assert.Empty(t, all)
}

func saveScoredAttempt(t *testing.T, f *fixture, user *store.User, topic string, score float64) {
	t.Helper()
	a := &store.QuizAttempt{UserID: user.ID, Chapter: "chapter1", Topic: topic}
	require.NoError(t, f.store.CreateQuizAttempt(context.Background(), a))
	a.Score = score
	require.NoError(t, f.store.SaveQuizGrading(context.Background(), a))
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saveScoredAttempt(t, f, f.user, "loss", 20)
	saveScoredAttempt(t, f, f.user, "data", 100)
	saveScoredAttempt(t, f, f.other, "data", 0)
	for _, url := range []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"} {
		require.NoError(t, f.store.CreateResource(ctx, &store.ExternalResource{URL: url, Title: url, Tags: "Loss,chapter1"}))
	}

	svc := NewAnalyticsService(f.store, nil, f.log)
	recs, err := svc.Recommendations(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "loss", recs[0].Topic)
	assert.Len(t, recs[0].Resources, resourcesPerWeakTopic)

	weak, err := svc.WeakestTopics(ctx, f.other.ID, 0)
	require.NoError(t, err)
	require.Len(t, weak, 1)
	assert.Equal(t, "data", weak[0].Topic)

	_, err = svc.WeakestTopics(ctx, f.other.ID+100, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMostQueriedTopicsDefaultsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, q := range []string{"a", "b", "c", "d", "e", "f", "a"} {
		require.NoError(t, f.store.CreateQueryLog(ctx, &store.RAGQueryLog{UserID: f.user.ID, Question: q, Answer: string(rune('0' + i))}))
	}
	counts, err := NewAnalyticsService(f.store, nil, f.log).MostQueriedTopics(ctx, 0)
	require.NoError(t, err)
	require.Len(t, counts, DefaultMostQueriedLimit)
	assert.Equal(t, store.QuestionCount{Question: "a", Count: 2}, counts[0])
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	llm := &fakeLLM{text: "- Students struggle with loss functions."}
	svc := NewAnalyticsService(f.store, llm, f.log)

	out, err := svc.Summary(context.Background(),
		[]store.RAGQueryLog{{Question: "What is a loss function?"}},
		[]store.QuizAttempt{{Topic: "loss", Score: 33.3}})
	require.NoError(t, err)
	assert.Equal(t, "- Students struggle with loss functions.", out)
	assert.Contains(t, llm.lastPrompt(), "- What is a loss function?")
	assert.Contains(t, llm.lastPrompt(), "- loss: 33")
	assert.Contains(t, llm.lastPrompt(), "2-3 short bullet-point insights")

	empty, err := svc.SummarizeRecent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, out, empty)
	assert.Contains(t, llm.lastPrompt(), "(none)")

	_, err = NewAnalyticsService(f.store, nil, f.log).Summary(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

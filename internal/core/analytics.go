package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

const (
	// WeakTopicThreshold is the mean score below which a topic counts as weak.
	WeakTopicThreshold = 70.0

	DefaultWeakestTopicsLimit = 3
	DefaultMostQueriedLimit   = 5
	DefaultRecentLimit        = 20
	resourcesPerWeakTopic     = 3
)

const summarySystemInstruction = `You are an assistant helping a course instructor understand student activity.`

const summaryPromptTemplate = `Recent student questions:
%s

Recent quiz results (topic: score):
%s

Based on this activity, give 2-3 short bullet-point insights about what students are struggling with and what the instructor could review.`

type TopicScore struct {
	Topic        string  `json:"topic"`
	AverageScore float64 `json:"average_score"`
	Attempts     int     `json:"attempts"`
}

type Recommendation struct {
	TopicScore
	Resources []store.ExternalResource `json:"resources"`
}

type AnalyticsService struct {
	store *store.SQLiteStore
	llm   Generator
	log   *logger.Logger
}

func NewAnalyticsService(db *store.SQLiteStore, llm Generator, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{store: db, llm: llm, log: log}
}

// WeakestTopics returns the user's topics with a mean score under
// WeakTopicThreshold, weakest first.
func (s *AnalyticsService) WeakestTopics(ctx context.Context, userID int64, limit int) ([]TopicScore, error) {
	if limit <= 0 {
		limit = DefaultWeakestTopicsLimit
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, mapStoreErr(err, "user", userID)
	}
	attempts, err := s.store.ListQuizAttemptsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz attempts: %w", err)
	}
	return weakestTopics(attempts, limit), nil
}

func weakestTopics(attempts []store.QuizAttempt, limit int) []TopicScore {
	byTopic := lo.GroupBy(attempts, func(a store.QuizAttempt) string { return a.Topic })

	weak := make([]TopicScore, 0, len(byTopic))
	for topic, group := range byTopic {
		mean := lo.SumBy(group, func(a store.QuizAttempt) float64 { return a.Score }) / float64(len(group))
		if mean < WeakTopicThreshold {
			weak = append(weak, TopicScore{Topic: topic, AverageScore: mean, Attempts: len(group)})
		}
	}
	sort.Slice(weak, func(i, j int) bool {
		if weak[i].AverageScore != weak[j].AverageScore {
			return weak[i].AverageScore < weak[j].AverageScore
		}
		return weak[i].Topic < weak[j].Topic
	})
	if len(weak) > limit {
		weak = weak[:limit]
	}
	return weak
}

// MostQueriedTopics counts logged questions by exact text, most frequent first.
func (s *AnalyticsService) MostQueriedTopics(ctx context.Context, limit int) ([]store.QuestionCount, error) {
	if limit <= 0 {
		limit = DefaultMostQueriedLimit
	}
	counts, err := s.store.MostQueriedQuestions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queries: %w", err)
	}
	return counts, nil
}

func (s *AnalyticsService) RecentQueryLogs(ctx context.Context, limit int) ([]store.RAGQueryLog, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.store.ListRecentQueryLogs(ctx, limit)
}

func (s *AnalyticsService) RecentAttempts(ctx context.Context, limit int) ([]store.QuizAttempt, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.store.ListRecentQuizAttempts(ctx, limit)
}

// Summary asks the model for a few insights over recent activity and returns its reply verbatim.
func (s *AnalyticsService) Summary(ctx context.Context, recentQueries []store.RAGQueryLog, recentAttempts []store.QuizAttempt) (string, error) {
	if s.llm == nil {
		return "", ErrUnavailable
	}

	questions := lo.Map(recentQueries, func(q store.RAGQueryLog, _ int) string { return "- " + q.Question })
	scores := lo.Map(recentAttempts, func(a store.QuizAttempt, _ int) string {
		return fmt.Sprintf("- %s: %.0f", a.Topic, a.Score)
	})
	prompt := fmt.Sprintf(summaryPromptTemplate, orNone(questions), orNone(scores))

	out, err := s.llm.GenerateText(ctx, summarySystemInstruction, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return out, nil
}

// SummarizeRecent runs Summary over the latest DefaultRecentLimit queries and attempts.
func (s *AnalyticsService) SummarizeRecent(ctx context.Context) (string, error) {
	queries, err := s.RecentQueryLogs(ctx, DefaultRecentLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load query logs: %w", err)
	}
	attempts, err := s.RecentAttempts(ctx, DefaultRecentLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load quiz attempts: %w", err)
	}
	return s.Summary(ctx, queries, attempts)
}

// Recommendations pairs each of the user's weakest topics with catalog resources tagged for it.
func (s *AnalyticsService) Recommendations(ctx context.Context, user *store.User) ([]Recommendation, error) {
	weak, err := s.WeakestTopics(ctx, user.ID, DefaultWeakestTopicsLimit)
	if err != nil {
		return nil, err
	}
	recs := make([]Recommendation, 0, len(weak))
	for _, w := range weak {
		resources, err := s.store.ListResources(ctx, w.Topic, resourcesPerWeakTopic)
		if err != nil {
			return nil, fmt.Errorf("failed to load resources for %q: %w", w.Topic, err)
		}
		recs = append(recs, Recommendation{TopicScore: w, Resources: resources})
	}
	return recs, nil
}

func orNone(lines []string) string {
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

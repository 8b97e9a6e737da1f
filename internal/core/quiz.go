package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

const MaxQuizQuestions = 20

// quizSchema rejects anything but the exact shape requested from the model.
const quizSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["question_text", "choices", "correct_answer_index"],
        "properties": {
          "question_text": {"type": "string", "minLength": 1},
          "choices": {
            "type": "array",
            "minItems": 2,
            "items": {"type": "string", "minLength": 1}
          },
          "correct_answer_index": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var quizSchemaLoader = gojsonschema.NewStringLoader(quizSchema)

const quizSystemInstruction = `You are a course teaching assistant who writes multiple-choice quizzes.
Write questions that can be answered from the supplied course content only.
Respond with JSON only, no prose and no markdown.`

const quizPromptTemplate = `Course content:
%s

Write %d multiple-choice questions about the topic "%s".
Return exactly this JSON structure:
{"questions": [{"question_text": "...", "choices": ["...", "...", "...", "..."], "correct_answer_index": 0}]}
correct_answer_index is the zero-based index of the correct choice.`

// Answer is one submitted answer to a quiz question.
type Answer struct {
	QuestionID  int64 `json:"question_id"`
	AnswerIndex int   `json:"answer_index"`
}

type generatedQuestion struct {
	QuestionText       string   `json:"question_text"`
	Choices            []string `json:"choices"`
	CorrectAnswerIndex int      `json:"correct_answer_index"`
}

type generatedQuiz struct {
	Questions []generatedQuestion `json:"questions"`
}

type QuizService struct {
	store    *store.SQLiteStore
	resolver *RetrieverResolver
	llm      Generator
	log      *logger.Logger
}

func NewQuizService(db *store.SQLiteStore, resolver *RetrieverResolver, llm Generator, log *logger.Logger) *QuizService {
	return &QuizService{store: db, resolver: resolver, llm: llm, log: log}
}

// Generate asks the model for a quiz on topic and persists it as a new attempt.
func (s *QuizService) Generate(ctx context.Context, user *store.User, chapter, topic string, numQuestions int) (*store.QuizAttempt, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic must not be empty", ErrValidation)
	}
	if numQuestions < 1 || numQuestions > MaxQuizQuestions {
		return nil, fmt.Errorf("%w: num_questions must be between 1 and %d", ErrValidation, MaxQuizQuestions)
	}
	if s.llm == nil {
		return nil, ErrUnavailable
	}

	retriever, err := s.resolver.Resolve(ctx, chapter)
	if err != nil {
		return nil, err
	}
	chunks, err := retriever.Retrieve(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt := fmt.Sprintf(quizPromptTemplate, formatContext(chunks), numQuestions, topic)
	raw, err := s.llm.GenerateJSON(ctx, quizSystemInstruction, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	quiz, err := parseQuiz(raw)
	if err != nil {
		s.log.Warn("Model returned an unusable quiz", "chapter", chapter, "topic", topic, "error", err)
		return nil, err
	}
	if len(quiz.Questions) > numQuestions {
		quiz.Questions = quiz.Questions[:numQuestions]
	}

	attempt := &store.QuizAttempt{
		UserID:  user.ID,
		Chapter: retriever.Chapter.Name,
		Topic:   topic,
		Questions: lo.Map(quiz.Questions, func(q generatedQuestion, _ int) store.Question {
			return store.Question{
				QuestionText:       q.QuestionText,
				CorrectAnswerIndex: q.CorrectAnswerIndex,
				Choices: lo.Map(q.Choices, func(c string, _ int) store.Choice {
					return store.Choice{ChoiceText: c}
				}),
			}
		}),
	}
	if err := s.store.CreateQuizAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to save quiz attempt: %w", err)
	}
	s.log.Info("Quiz generated", "attempt_id", attempt.ID, "user_id", user.ID, "chapter", attempt.Chapter, "questions", len(attempt.Questions))
	return attempt, nil
}

// parseQuiz validates the model output against quizSchema. Every failure wraps ErrGeneration.
func parseQuiz(raw string) (*generatedQuiz, error) {
	raw = stripCodeFence(raw)

	result, err := gojsonschema.Validate(quizSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrGeneration, err)
	}
	if !result.Valid() {
		msgs := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string { return e.String() })
		return nil, fmt.Errorf("%w: %s", ErrGeneration, strings.Join(msgs, "; "))
	}

	var quiz generatedQuiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	for i, q := range quiz.Questions {
		if q.CorrectAnswerIndex >= len(q.Choices) {
			return nil, fmt.Errorf("%w: question %d has correct_answer_index %d but only %d choices",
				ErrGeneration, i+1, q.CorrectAnswerIndex, len(q.Choices))
		}
	}
	return &quiz, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Submit grades answers against the attempt and stores the result. Answers for
// questions outside the attempt are ignored. Resubmitting overwrites earlier grading.
func (s *QuizService) Submit(ctx context.Context, attemptID int64, user *store.User, answers []Answer) (*store.QuizAttempt, error) {
	attempt, err := s.store.GetQuizAttempt(ctx, attemptID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && attempt.UserID != user.ID) {
		return nil, fmt.Errorf("%w: quiz attempt %d", ErrNotFound, attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz attempt: %w", err)
	}

	Grade(attempt, answers)

	if err := s.store.SaveQuizGrading(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to save grading: %w", err)
	}
	s.log.Info("Quiz submitted", "attempt_id", attempt.ID, "user_id", user.ID, "score", attempt.Score)
	return attempt, nil
}

// Grade applies answers to attempt in place and recomputes its score.
func Grade(attempt *store.QuizAttempt, answers []Answer) {
	byQuestion := lo.KeyBy(answers, func(a Answer) int64 { return a.QuestionID })
	for i := range attempt.Questions {
		q := &attempt.Questions[i]
		a, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		idx := a.AnswerIndex
		verdict := store.AnswerIncorrect
		if idx == q.CorrectAnswerIndex {
			verdict = store.AnswerCorrect
		}
		q.UserAnswerIndex = &idx
		q.IsCorrect = &verdict
	}
	attempt.Score = Score(attempt.Questions)
}

// Score is 100 * correct / total, or 0 for an attempt without questions.
func Score(questions []store.Question) float64 {
	if len(questions) == 0 {
		return 0
	}
	correct := lo.CountBy(questions, func(q store.Question) bool {
		return q.IsCorrect != nil && *q.IsCorrect == store.AnswerCorrect
	})
	return 100 * float64(correct) / float64(len(questions))
}

func (s *QuizService) History(ctx context.Context, user *store.User) ([]store.QuizAttempt, error) {
	attempts, err := s.store.ListQuizAttemptsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz attempts: %w", err)
	}
	return attempts, nil
}

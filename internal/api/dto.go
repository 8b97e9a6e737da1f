package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/virtual-ta/ta-backend/internal/core"
	"github.com/virtual-ta/ta-backend/internal/store"
)

const defaultQuizQuestions = 5

type askRequest struct {
	Question string `json:"question" validate:"required"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type quizGenerateRequest struct {
	Topic        string `json:"topic" validate:"required"`
	NumQuestions *int   `json:"num_questions" validate:"omitempty,min=1,max=20"`
}

type answerRequest struct {
	QuestionID  int64 `json:"question_id" validate:"required"`
	AnswerIndex *int  `json:"answer_index" validate:"required,min=0"`
}

type quizSubmitRequest struct {
	Answers []answerRequest `json:"answers" validate:"required,dive"`
}

func (r quizSubmitRequest) toAnswers() []core.Answer {
	out := make([]core.Answer, len(r.Answers))
	for i, a := range r.Answers {
		out[i] = core.Answer{QuestionID: a.QuestionID, AnswerIndex: *a.AnswerIndex}
	}
	return out
}

type chapterRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	DisplayName string `json:"display_name" validate:"max=200"`
	Description string `json:"description"`
	FolderPath  string `json:"folder_path"`
	IsActive    *bool  `json:"is_active"`
}

func (r chapterRequest) toInput() core.ChapterInput {
	return core.ChapterInput{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		FolderPath:  r.FolderPath,
		IsActive:    r.IsActive,
	}
}

type resourceRequest struct {
	URL         string   `json:"url" validate:"required,url"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags" validate:"dive,max=50"`
}

func (r resourceRequest) toInput() core.ResourceInput {
	return core.ResourceInput{URL: r.URL, Title: r.Title, Description: r.Description, Tags: r.Tags}
}

type resourceView struct {
	ID          int64    `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func newResourceView(r store.ExternalResource) resourceView {
	tags := r.TagList()
	if tags == nil {
		tags = []string{}
	}
	return resourceView{ID: r.ID, URL: r.URL, Title: r.Title, Description: r.Description, Tags: tags}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type reindexResponse struct {
	Chapter *store.Chapter `json:"chapter"`
	Chunks  int            `json:"chunks"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// Views of a freshly generated quiz omit the correct answers.
type quizChoiceView struct {
	ID         int64  `json:"id"`
	ChoiceText string `json:"choice_text"`
}

type quizQuestionView struct {
	ID           int64            `json:"id"`
	QuestionText string           `json:"question_text"`
	Choices      []quizChoiceView `json:"choices"`
}

type quizView struct {
	ID        int64              `json:"id"`
	Chapter   string             `json:"chapter"`
	Topic     string             `json:"topic"`
	Score     float64            `json:"score"`
	CreatedAt time.Time          `json:"created_at"`
	Questions []quizQuestionView `json:"questions"`
}

func newQuizView(a *store.QuizAttempt) quizView {
	v := quizView{ID: a.ID, Chapter: a.Chapter, Topic: a.Topic, Score: a.Score, CreatedAt: a.CreatedAt,
		Questions: make([]quizQuestionView, 0, len(a.Questions))}
	for _, q := range a.Questions {
		qv := quizQuestionView{ID: q.ID, QuestionText: q.QuestionText, Choices: make([]quizChoiceView, 0, len(q.Choices))}
		for _, c := range q.Choices {
			qv.Choices = append(qv.Choices, quizChoiceView{ID: c.ID, ChoiceText: c.ChoiceText})
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return newAPIError(http.StatusBadRequest, "invalid request body: %v", err)
	}
	return h.validate.Struct(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, newAPIError(http.StatusBadRequest, "invalid %s", name)
	}
	return id, nil
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, newAPIError(http.StatusBadRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func requiredQuery(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", newAPIError(http.StatusBadRequest, "query parameter %q is required", name)
	}
	return v, nil
}

package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/virtual-ta/ta-backend/internal/auth"
	"github.com/virtual-ta/ta-backend/internal/core"
	"github.com/virtual-ta/ta-backend/internal/logger"
)

// Services groups everything the handlers call into.
type Services struct {
	Auth      *auth.Service
	Chapters  *core.ChapterService
	Resources *core.ResourceService
	Answers   *core.AnswerService
	Quizzes   *core.QuizService
	Analytics *core.AnalyticsService
}

type Handler struct {
	auth        *auth.Service
	chapters    *core.ChapterService
	resources   *core.ResourceService
	answers     *core.AnswerService
	quizzes     *core.QuizService
	analytics   *core.AnalyticsService
	frontendURL string
	validate    *validator.Validate
	log         *logger.Logger
}

func NewHandler(s Services, frontendURL string, log *logger.Logger) *Handler {
	return &Handler{
		auth:        s.Auth,
		chapters:    s.Chapters,
		resources:   s.Resources,
		answers:     s.Answers,
		quizzes:     s.Quizzes,
		analytics:   s.Analytics,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		validate:    validator.New(),
		log:         log,
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LoginHandler redirects the browser to Google's consent page.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "Google login is not configured"})
		return
	}
	http.Redirect(w, r, h.auth.BeginLogin(w, r), http.StatusFound)
}

// CallbackHandler finishes the OAuth flow. With a frontend configured the
// token is handed over by redirect, otherwise it is returned as JSON.
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "Google login is not configured"})
		return
	}
	token, _, err := h.auth.CompleteLogin(w, r)
	if err != nil {
		h.log.Warn("Login failed", "error", err)
		respondJSON(w, http.StatusBadRequest, errorBody{Detail: "Could not authenticate with Google: " + err.Error()})
		return
	}

	if h.frontendURL != "" {
		http.Redirect(w, r, h.frontendURL+"/callback?token="+url.QueryEscape(token), http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: auth.TokenType})
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, auth.UserFromContext(r.Context()))
}

// ChaptersHandler lists active chapter names for the chapter picker.
func (h *Handler) ChaptersHandler(w http.ResponseWriter, r *http.Request) {
	names, err := h.chapters.ActiveNames(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}

func (h *Handler) AskHandler(w http.ResponseWriter, r *http.Request) {
	chapter, err := requiredQuery(r, "chapter")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req askRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	answer, err := h.answers.Answer(r.Context(), auth.UserFromContext(r.Context()), chapter, req.Question)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, askResponse{Answer: answer})
}

func (h *Handler) GenerateQuizHandler(w http.ResponseWriter, r *http.Request) {
	chapter, err := requiredQuery(r, "chapter")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req quizGenerateRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	n := defaultQuizQuestions
	if req.NumQuestions != nil {
		n = *req.NumQuestions
	}

	attempt, err := h.quizzes.Generate(r.Context(), auth.UserFromContext(r.Context()), chapter, req.Topic, n)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, newQuizView(attempt))
}

func (h *Handler) SubmitQuizHandler(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req quizSubmitRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	graded, err := h.quizzes.Submit(r.Context(), attemptID, auth.UserFromContext(r.Context()), req.toAnswers())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, graded)
}

func (h *Handler) QuizHistoryHandler(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.quizzes.History(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}

func (h *Handler) RecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	recs, err := h.analytics.Recommendations(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

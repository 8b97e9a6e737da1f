package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/lo"

	"github.com/virtual-ta/ta-backend/internal/logger"
)

func NewRouter(h *Handler, corsOrigins []string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		// A wildcard origin must not be combined with credentials.
		AllowCredentials: !lo.Contains(corsOrigins, "*"),
		MaxAge:           300,
	}))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.LoginHandler)
		r.Get("/callback", h.CallbackHandler)
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.HealthHandler)
		r.Get("/chapters", h.ChaptersHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)

			r.Get("/users/me", h.MeHandler)
			r.Post("/ask", h.AskHandler)
			r.Post("/quiz/generate", h.GenerateQuizHandler)
			r.Post("/quiz/submit/{attemptID}", h.SubmitQuizHandler)
			r.Get("/quiz/history", h.QuizHistoryHandler)
			r.Get("/recommendations", h.RecommendationsHandler)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.RequireAdmin)

				r.Get("/status", h.AdminStatusHandler)
				r.Get("/folders", h.FoldersHandler)

				r.Route("/chapters", func(r chi.Router) {
					r.Get("/", h.ListChaptersHandler)
					r.Post("/", h.CreateChapterHandler)
					r.Get("/{id}", h.GetChapterHandler)
					r.Put("/{id}", h.UpdateChapterHandler)
					r.Delete("/{id}", h.DeleteChapterHandler)
					r.Patch("/{id}/toggle", h.ToggleChapterHandler)
					r.Post("/{id}/reindex", h.ReindexChapterHandler)
				})

				r.Route("/resources", func(r chi.Router) {
					r.Get("/", h.ListResourcesHandler)
					r.Post("/", h.CreateResourceHandler)
					r.Get("/{id}", h.GetResourceHandler)
					r.Put("/{id}", h.UpdateResourceHandler)
					r.Delete("/{id}", h.DeleteResourceHandler)
				})

				r.Route("/analytics", func(r chi.Router) {
					r.Get("/query-logs", h.QueryLogsHandler)
					r.Get("/quiz-attempts", h.QuizAttemptsHandler)
					r.Get("/most-queried", h.MostQueriedHandler)
					r.Get("/weakest-topics", h.WeakestTopicsHandler)
					r.Get("/summary", h.SummaryHandler)
				})
			})
		})
	})

	return r
}

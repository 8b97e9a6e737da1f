package api

import (
	"net/http"

	"github.com/samber/lo"

	"github.com/virtual-ta/ta-backend/internal/auth"
	"github.com/virtual-ta/ta-backend/internal/core"
	"github.com/virtual-ta/ta-backend/internal/store"
)

func (h *Handler) AdminStatusHandler(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{"message": "Welcome, admin " + u.Name + "!"})
}

func (h *Handler) ListChaptersHandler(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.chapters.List(r.Context(), boolQuery(r, "include_inactive"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, chapters)
}

func (h *Handler) GetChapterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	c, err := h.chapters.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateChapterHandler(w http.ResponseWriter, r *http.Request) {
	var req chapterRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	c, err := h.chapters.Create(r.Context(), req.toInput())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateChapterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req chapterRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	c, err := h.chapters.Update(r.Context(), id, req.toInput())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteChapterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.chapters.Delete(r.Context(), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleChapterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	c, err := h.chapters.Toggle(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) ReindexChapterHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	n, err := h.chapters.Reindex(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	c, err := h.chapters.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, reindexResponse{Chapter: c, Chunks: n})
}

func (h *Handler) FoldersHandler(w http.ResponseWriter, r *http.Request) {
	folders, err := h.chapters.Folders(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, folders)
}

func (h *Handler) ListResourcesHandler(w http.ResponseWriter, r *http.Request) {
	resources, err := h.resources.List(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, lo.Map(resources, func(res store.ExternalResource, _ int) resourceView {
		return newResourceView(res)
	}))
}

func (h *Handler) GetResourceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	res, err := h.resources.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, newResourceView(*res))
}

func (h *Handler) CreateResourceHandler(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	res, err := h.resources.Create(r.Context(), req.toInput())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, newResourceView(*res))
}

func (h *Handler) UpdateResourceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req resourceRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	res, err := h.resources.Update(r.Context(), id, req.toInput())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, newResourceView(*res))
}

func (h *Handler) DeleteResourceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.resources.Delete(r.Context(), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) QueryLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", core.DefaultRecentLimit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	logs, err := h.analytics.RecentQueryLogs(r.Context(), limit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (h *Handler) QuizAttemptsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", core.DefaultRecentLimit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	attempts, err := h.analytics.RecentAttempts(r.Context(), limit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}

func (h *Handler) MostQueriedHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", core.DefaultMostQueriedLimit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	counts, err := h.analytics.MostQueriedTopics(r.Context(), limit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (h *Handler) WeakestTopicsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := intQuery(r, "user_id", 0)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if userID == 0 {
		respondError(w, r, h.log, newAPIError(http.StatusBadRequest, "query parameter \"user_id\" is required"))
		return
	}
	limit, err := intQuery(r, "limit", core.DefaultWeakestTopicsLimit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	topics, err := h.analytics.WeakestTopics(r.Context(), int64(userID), limit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, topics)
}

func (h *Handler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.SummarizeRecent(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

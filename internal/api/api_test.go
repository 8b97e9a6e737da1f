package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtual-ta/ta-backend/internal/auth"
	"github.com/virtual-ta/ta-backend/internal/core"
	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
	"github.com/virtual-ta/ta-backend/internal/vectorindex"
)

type stubLLM struct {
	text string
	json string
}

func (s *stubLLM) GenerateText(context.Context, string, string) (string, error) { return s.text, nil }
func (s *stubLLM) GenerateJSON(context.Context, string, string) (string, error) { return s.json, nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

type stubProvider struct{ info *auth.UserInfo }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/o/auth?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(context.Context, string) (*auth.UserInfo, error) { return p.info, nil }

type testServer struct {
	t        *testing.T
	db       *store.SQLiteStore
	tokens   *auth.TokenIssuer
	llm      *stubLLM
	provider *stubProvider
	root     string
	handler  http.Handler
}

func newTestServer(t *testing.T, frontendURL string) *testServer {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewNop()
	ts := &testServer{
		t:        t,
		db:       db,
		tokens:   auth.NewTokenIssuer("test-secret", time.Hour),
		llm:      &stubLLM{text: "stub answer"},
		provider: &stubProvider{},
		root:     t.TempDir(),
	}
	isAdmin := func(email string) bool { return email == "prof@school.edu" }
	resolver := core.NewRetrieverResolver(db, stubEmbedder{})
	h := NewHandler(Services{
		Auth:      auth.NewService(db, ts.provider, ts.tokens, isAdmin, log),
		Chapters:  core.NewChapterService(db, nil, ts.root, log),
		Resources: core.NewResourceService(db, log),
		Answers:   core.NewAnswerService(db, resolver, ts.llm, log),
		Quizzes:   core.NewQuizService(db, resolver, ts.llm, log),
		Analytics: core.NewAnalyticsService(db, ts.llm, log),
	}, frontendURL, log)
	ts.handler = NewRouter(h, []string{"*"}, log)
	return ts
}

// login creates the user directly and returns a bearer token for it.
func (ts *testServer) login(email, role string) string {
	ts.t.Helper()
	u, err := ts.db.UpsertLoginUser(context.Background(), email, email, "", role)
	require.NoError(ts.t, err)
	token, err := ts.tokens.GenerateJWT(u)
	require.NoError(ts.t, err)
	return token
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) addIndexedChapter(name string) {
	ts.t.Helper()
	folder := filepath.Join(ts.root, name)
	require.NoError(ts.t, os.MkdirAll(folder, 0o755))
	require.NoError(ts.t, vectorindex.Build(context.Background(), folder, "stub", []vectorindex.Chunk{
		{Source: "materials/a.md", Content: "Overfitting means memorising noise.", Embedding: []float32{1, 0}},
	}))
	require.NoError(ts.t, ts.db.CreateChapter(context.Background(),
		&store.Chapter{Name: name, DisplayName: name, FolderPath: folder, IsActive: true}))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndAuthRequired(t *testing.T) {
	ts := newTestServer(t, "")

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/health", "", nil).Code)

	rec := ts.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", decode[errorBody](t, rec).Detail)

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/users/me", "garbage", nil).Code)

	token := ts.login("student@school.edu", store.RoleUser)
	rec = ts.do(http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student@school.edu", decode[store.User](t, rec).Email)
}

func TestCORSCredentials(t *testing.T) {
	preflight := func(h http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/chapters", nil)
		req.Header.Set("Origin", "https://ta.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	ts := newTestServer(t, "")
	rec := preflight(ts.handler)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	h := NewHandler(Services{}, "", logger.NewNop())
	rec = preflight(NewRouter(h, []string{"https://ta.example"}, logger.NewNop()))
	assert.Equal(t, "https://ta.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestChaptersListingIsStable(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	for _, name := range []string{"chapter2", "chapter1", "chapter3"} {
		require.NoError(t, ts.db.CreateChapter(ctx, &store.Chapter{Name: name, DisplayName: name, FolderPath: "/kb/" + name, IsActive: name != "chapter3"}))
	}

	first := ts.do(http.MethodGet, "/api/chapters", "", nil)
	second := ts.do(http.MethodGet, "/api/chapters", "", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, []string{"chapter1", "chapter2"}, decode[[]string](t, first))
}

func TestQuizGenerateAndSubmit(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addIndexedChapter("chapter1")
	ts.llm.json = `{"questions": [{"question_text": "What is overfitting?", "choices": ["Memorising noise", "Underfitting"], "correct_answer_index": 0}]}`
	token := ts.login("student@school.edu", store.RoleUser)

	rec := ts.do(http.MethodPost, "/api/quiz/generate?chapter=chapter1", token, map[string]any{"topic": "overfitting", "num_questions": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "correct_answer_index")
	quiz := decode[quizView](t, rec)
	require.Len(t, quiz.Questions, 1)
	require.Len(t, quiz.Questions[0].Choices, 2)

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/quiz/submit/%d", quiz.ID), token, map[string]any{
		"answers": []map[string]any{{"question_id": quiz.Questions[0].ID, "answer_index": 0}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	graded := decode[store.QuizAttempt](t, rec)
	assert.Equal(t, 100.0, graded.Score)
	require.NotNil(t, graded.Questions[0].IsCorrect)
	assert.Equal(t, store.AnswerCorrect, *graded.Questions[0].IsCorrect)

	other := ts.login("other@school.edu", store.RoleUser)
	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/quiz/submit/%d", quiz.ID), other, map[string]any{"answers": []any{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	history := decode[[]store.QuizAttempt](t, ts.do(http.MethodGet, "/api/quiz/history", token, nil))
	require.Len(t, history, 1)
	assert.Equal(t, 100.0, history[0].Score)
}

func TestQuizSubmitRequiresAnswers(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addIndexedChapter("chapter1")
	ts.llm.json = `{"questions": [{"question_text": "Q", "choices": ["a", "b"], "correct_answer_index": 1}]}`
	token := ts.login("student@school.edu", store.RoleUser)

	rec := ts.do(http.MethodPost, "/api/quiz/generate?chapter=chapter1", token, map[string]any{"topic": "t"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quiz := decode[quizView](t, rec)
	path := fmt.Sprintf("/api/quiz/submit/%d", quiz.ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, path, token, map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, path, token, map[string]any{"answers": nil}).Code)

	attempt, err := ts.db.GetQuizAttempt(context.Background(), quiz.ID)
	require.NoError(t, err)
	assert.Nil(t, attempt.Questions[0].IsCorrect)
}

func TestQuizGenerateErrors(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addIndexedChapter("chapter1")
	token := ts.login("student@school.edu", store.RoleUser)

	rec := ts.do(http.MethodPost, "/api/quiz/generate?chapter=chapter1", token, map[string]any{"topic": "x", "num_questions": 21})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/quiz/generate", token, map[string]any{"topic": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.llm.json = `{"questions": "nope"}`
	rec = ts.do(http.MethodPost, "/api/quiz/generate?chapter=chapter1", token, map[string]any{"topic": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Detail, "quiz generation failed")
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addIndexedChapter("chapter1")
	token := ts.login("student@school.edu", store.RoleUser)

	rec := ts.do(http.MethodPost, "/api/ask?chapter=chapter1", token, map[string]string{"question": "What is overfitting?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "stub answer", decode[askResponse](t, rec).Answer)

	rec = ts.do(http.MethodPost, "/api/ask?chapter=unknown", token, map[string]string{"question": "q"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/api/ask?chapter=chapter1", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNonAdminCannotCreateResource(t *testing.T) {
	ts := newTestServer(t, "")
	token := ts.login("student@school.edu", store.RoleUser)

	rec := ts.do(http.MethodPost, "/api/admin/resources", token, map[string]any{"url": "https://x.example", "title": "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	all, err := ts.db.ListResources(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/admin/status", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/admin/status", "", nil).Code)
}

func TestAdminResourceCRUD(t *testing.T) {
	ts := newTestServer(t, "")
	admin := ts.login("prof@school.edu", store.RoleAdmin)

	rec := ts.do(http.MethodPost, "/api/admin/resources", admin, map[string]any{
		"url": "https://videos.example/loss", "title": "Loss", "tags": []string{"chapter1", " loss "},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[resourceView](t, rec)
	assert.Equal(t, []string{"chapter1", "loss"}, created.Tags)

	rec = ts.do(http.MethodPost, "/api/admin/resources", admin, map[string]any{"url": "https://videos.example/loss", "title": "Dup"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/admin/resources", admin, map[string]any{"url": "not a url", "title": "Bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decode[[]resourceView](t, ts.do(http.MethodGet, "/api/admin/resources?tag=LOSS", admin, nil))
	require.Len(t, list, 1)

	path := fmt.Sprintf("/api/admin/resources/%d", created.ID)
	rec = ts.do(http.MethodPut, path, admin, map[string]any{"url": "https://videos.example/loss2", "title": "Loss 2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Loss 2", decode[resourceView](t, rec).Title)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, path, admin, nil).Code)
}

func TestAdminChapterEndpoints(t *testing.T) {
	ts := newTestServer(t, "")
	admin := ts.login("prof@school.edu", store.RoleAdmin)

	rec := ts.do(http.MethodPost, "/api/admin/chapters", admin, map[string]any{"name": "ghost", "folder_path": filepath.Join(ts.root, "missing")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[store.Chapter](t, rec)

	path := fmt.Sprintf("/api/admin/chapters/%d", created.ID)
	before := ts.do(http.MethodGet, path, admin, nil).Body.String()

	rec = ts.do(http.MethodPost, path+"/reindex", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Detail, "does not exist")
	assert.Equal(t, before, ts.do(http.MethodGet, path, admin, nil).Body.String())

	rec = ts.do(http.MethodPatch, path+"/toggle", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[store.Chapter](t, rec).IsActive)

	active := decode[[]store.Chapter](t, ts.do(http.MethodGet, "/api/admin/chapters", admin, nil))
	assert.Empty(t, active)
	all := decode[[]store.Chapter](t, ts.do(http.MethodGet, "/api/admin/chapters?include_inactive=true", admin, nil))
	assert.Len(t, all, 1)

	rec = ts.do(http.MethodPost, "/api/admin/chapters", admin, map[string]any{"name": "ghost"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, path, admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/admin/chapters/abc", admin, nil).Code)
}

func TestAdminAnalytics(t *testing.T) {
	ts := newTestServer(t, "")
	ts.addIndexedChapter("chapter1")
	admin := ts.login("prof@school.edu", store.RoleAdmin)
	student := ts.login("student@school.edu", store.RoleUser)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/ask?chapter=chapter1", student, map[string]string{"question": "What is overfitting?"}).Code)
	}

	logs := decode[[]store.RAGQueryLog](t, ts.do(http.MethodGet, "/api/admin/analytics/query-logs?limit=1", admin, nil))
	require.Len(t, logs, 1)
	assert.Equal(t, "student@school.edu", logs[0].UserEmail)

	counts := decode[[]store.QuestionCount](t, ts.do(http.MethodGet, "/api/admin/analytics/most-queried", admin, nil))
	assert.Equal(t, []store.QuestionCount{{Question: "What is overfitting?", Count: 2}}, counts)

	rec := ts.do(http.MethodGet, "/api/admin/analytics/weakest-topics", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	studentUser, err := ts.db.GetUserByEmail(context.Background(), "student@school.edu")
	require.NoError(t, err)
	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/admin/analytics/weakest-topics?user_id=%d", studentUser.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.TopicScore](t, rec))

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/admin/analytics/weakest-topics?user_id=%d", studentUser.ID+100), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.llm.text = "- Students ask about overfitting."
	rec = ts.do(http.MethodGet, "/api/admin/analytics/summary", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "- Students ask about overfitting.", decode[summaryResponse](t, rec).Summary)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/admin/analytics/query-logs?limit=x", admin, nil).Code)
}

func TestOAuthCallback(t *testing.T) {
	for _, frontend := range []string{"", "https://ta.example/"} {
		t.Run("frontend="+frontend, func(t *testing.T) {
			ts := newTestServer(t, frontend)
			ts.provider.info = &auth.UserInfo{Email: "prof@school.edu", Name: "Prof"}

			rec := ts.do(http.MethodGet, "/auth/login", "", nil)
			require.Equal(t, http.StatusFound, rec.Code)
			loc, err := url.Parse(rec.Header().Get("Location"))
			require.NoError(t, err)
			state := loc.Query().Get("state")

			req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape(state), nil)
			for _, c := range rec.Result().Cookies() {
				req.AddCookie(c)
			}
			cb := httptest.NewRecorder()
			ts.handler.ServeHTTP(cb, req)

			var token string
			if frontend == "" {
				require.Equal(t, http.StatusOK, cb.Code, cb.Body.String())
				resp := decode[tokenResponse](t, cb)
				assert.Equal(t, "bearer", resp.TokenType)
				token = resp.AccessToken
			} else {
				require.Equal(t, http.StatusFound, cb.Code)
				target := cb.Header().Get("Location")
				require.True(t, strings.HasPrefix(target, "https://ta.example/callback?token="), target)
				u, err := url.Parse(target)
				require.NoError(t, err)
				token = u.Query().Get("token")
			}

			me := ts.do(http.MethodGet, "/api/users/me", token, nil)
			require.Equal(t, http.StatusOK, me.Code)
			assert.Equal(t, store.RoleAdmin, decode[store.User](t, me).Role)
			assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/admin/status", token, nil).Code)
		})
	}
}

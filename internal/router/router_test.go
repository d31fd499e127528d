package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jukwaa/internal/middleware"
	"jukwaa/internal/services"
	"jukwaa/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	st := store.NewMemory()
	cache, err := services.NewTreeCache(32, time.Minute)
	require.NoError(t, err)
	deps := services.Deps{Store: st, Cache: cache}
	svc := Services{
		Content:    services.NewContentService(deps, services.ContentConfig{MaxDepth: 2}),
		Votes:      services.NewVoteLedger(deps),
		Polls:      services.NewPollEngine(deps),
		Reports:    services.NewReportAggregator(deps),
		Moderation: services.NewModerationEngine(deps, services.NewStoreAccountSink(st), services.ModerationConfig{}),
	}
	r := New(svc, Options{SessionSecret: "test-secret", Debug: true, Limiter: limiter})
	r.GET("/test/login", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(middleware.SessionActorID, c.Query("id"))
		s.Set(middleware.SessionRole, c.Query("role"))
		require.NoError(t, s.Save())
		c.Status(http.StatusNoContent)
	})
	return &testServer{t: t, engine: r}
}

func (s *testServer) login(id, role string) []*http.Cookie {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/test/login?id=%s&role=%s", id, role), nil))
	require.Equal(s.t, http.StatusNoContent, w.Code)
	return w.Result().Cookies()
}

func (s *testServer) do(method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return e["code"].(string)
}

func (s *testServer) createPost(cookies []*http.Cookie, extra map[string]any) string {
	body := map[string]any{"title": "Water rationing schedule", "body": "Mondays and Thursdays", "category": "infrastructure"}
	for k, v := range extra {
		body[k] = v
	}
	w := s.do(http.MethodPost, "/api/posts", body, cookies)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(s.t, w)["id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = s.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.login("alice", "citizen")
	bob := s.login("bob", "citizen")

	w := s.do(http.MethodPost, "/api/posts", map[string]any{"title": "Water rationing", "body": "x", "category": "general"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/posts", map[string]any{"title": "Hi", "body": "x", "category": "general"}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	id := s.createPost(alice, nil)

	w = s.do(http.MethodPatch, "/api/posts/"+id, map[string]any{"title": "Hijacked title"}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/posts/"+id+"/comments", map[string]any{"body": "Thanks for sharing"}, bob)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	top := decode(t, w)["id"].(string)

	w = s.do(http.MethodPost, "/api/comments/"+top+"/replies", map[string]any{"body": "You're welcome"}, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reply := decode(t, w)["id"].(string)

	w = s.do(http.MethodPost, "/api/comments/"+reply+"/replies", map[string]any{"body": "Too deep"}, bob)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DEPTH_EXCEEDED", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/posts/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode(t, w)
	comments := tree["comments"].([]any)
	require.Len(t, comments, 1)
	replies := comments[0].(map[string]any)["replies"].([]any)
	assert.Len(t, replies, 1)

	w = s.do(http.MethodGet, "/api/posts?sort=top", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/api/posts/"+id, nil, alice)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, "/api/posts/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVotesAndPollsOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.login("alice", "citizen")
	bob := s.login("bob", "citizen")
	id := s.createPost(alice, map[string]any{"poll": map[string]any{
		"question": "Which day works best?",
		"options":  []string{"Monday", "Thursday"},
		"ends_at":  time.Now().Add(time.Hour).Format(time.RFC3339),
	}})

	w := s.do(http.MethodPost, "/api/votes/post/"+id, map[string]any{"direction": "up"}, bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["score"])

	w = s.do(http.MethodGet, "/api/votes/post/"+id, nil, bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	score := decode(t, w)
	assert.EqualValues(t, 1, score["upvotes"])
	assert.Equal(t, "up", score["actor_vote"])

	w = s.do(http.MethodGet, "/api/votes/post/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["actor_vote"])

	w = s.do(http.MethodGet, "/api/votes/user/"+id, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/votes/post/"+id, map[string]any{"direction": "sideways"}, bob)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/votes/post/"+id, map[string]any{"direction": nil}, bob)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["score"])

	w = s.do(http.MethodPost, "/api/posts/"+id+"/poll/votes", map[string]any{"option_index": 1}, bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["total_votes"])

	w = s.do(http.MethodPost, "/api/posts/"+id+"/poll/votes", map[string]any{"option_index": 7}, bob)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_OPTION", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/posts/"+id+"/poll", nil, bob)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(1)}, decode(t, w)["actor_choices"])

	w = s.do(http.MethodGet, "/api/posts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"voters"`, "voter ids are never exposed")
}

func TestModerationOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.login("alice", "citizen")
	bob := s.login("bob", "citizen")
	mod := s.login("mod1", "moderator")
	p1 := s.createPost(alice, nil)
	p2 := s.createPost(alice, nil)

	for _, id := range []string{p1, p2} {
		w := s.do(http.MethodPost, "/api/reports", map[string]any{"target_kind": "post", "target_id": id, "reason": "spam"}, bob)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := s.do(http.MethodGet, "/api/moderation/queue", nil, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/moderation/queue", nil, mod)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["records"], 2)

	w = s.do(http.MethodPost, "/api/moderation/post/"+p2, map[string]any{"action": "reject"}, mod)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected", decode(t, w)["status"])

	w = s.do(http.MethodPost, "/api/moderation/bulk", map[string]any{
		"action":  "approve",
		"targets": []map[string]string{{"kind": "post", "id": p1}, {"kind": "post", "id": p2}},
	}, mod)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].(map[string]any)["ok"])
	second := results[1].(map[string]any)
	assert.Equal(t, false, second["ok"])
	assert.Equal(t, "INVALID_TRANSITION", second["error"].(map[string]any)["code"])

	w = s.do(http.MethodGet, "/api/moderation/records/post/"+p2, nil, mod)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["records"], 1)

	w = s.do(http.MethodPost, "/api/moderation/users/troll/reinstate", nil, mod)
	assert.Equal(t, http.StatusForbidden, w.Code, "admin only")
}

func TestMutationsAreRateLimited(t *testing.T) {
	limiter, err := middleware.NewRateLimiter(0.001, 1, 16, time.Minute)
	require.NoError(t, err)
	s := newTestServer(t, limiter)
	alice := s.login("alice", "citizen")

	s.createPost(alice, nil)
	w := s.do(http.MethodPost, "/api/posts", map[string]any{"title": "Another title", "body": "x", "category": "general"}, alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/posts", nil, alice)
	assert.Equal(t, http.StatusOK, w.Code, "reads are not limited")
}

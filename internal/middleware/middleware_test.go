package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jukwaa/internal/models"
	"jukwaa/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine signs in as the given session values through a helper route.
func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.GET("/login", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(SessionActorID, c.Query("id"))
		s.Set(SessionRole, c.Query("role"))
		s.Set(SessionConstituency, c.Query("constituency"))
		require.NoError(t, s.Save())
		c.Status(http.StatusNoContent)
	})
	r.Use(LoadActor())
	return r
}

func login(t *testing.T, r *gin.Engine, query string) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?"+query, nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	return w.Result().Cookies()
}

func get(r *gin.Engine, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoadActorFromSession(t *testing.T) {
	r := newEngine(t)
	var seen services.Actor
	r.GET("/whoami", func(c *gin.Context) {
		seen = CurrentActor(c)
		c.Status(http.StatusOK)
	})

	cookies := login(t, r, "id=u1&role=Representative&constituency=Kibra")
	get(r, "/whoami", cookies)
	assert.Equal(t, services.Actor{ID: "u1", Role: models.RoleRepresentative, Constituency: "Kibra"}, seen)

	cookies = login(t, r, "id=u2&role=overlord")
	get(r, "/whoami", cookies)
	assert.Equal(t, models.RoleCitizen, seen.Role, "unknown roles fall back to citizen")

	get(r, "/whoami", nil)
	assert.True(t, seen.Anonymous())
}

func TestRoleGuards(t *testing.T) {
	r := newEngine(t)
	r.GET("/mine", AuthRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/queue", ModeratorRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, get(r, "/mine", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/queue", nil).Code)

	citizen := login(t, r, "id=u1&role=citizen")
	assert.Equal(t, http.StatusOK, get(r, "/mine", citizen).Code)
	w := get(r, "/queue", citizen)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":{"code":"FORBIDDEN","message":"moderator role required"}}`, w.Body.String())

	mod := login(t, r, "id=m1&role=moderator")
	assert.Equal(t, http.StatusOK, get(r, "/queue", mod).Code)
}

func TestRateLimiterPerActor(t *testing.T) {
	limiter, err := NewRateLimiter(0.001, 2, 16, time.Minute)
	require.NoError(t, err)
	r := newEngine(t)
	r.GET("/act", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	alice := login(t, r, "id=alice")
	bob := login(t, r, "id=bob")
	assert.Equal(t, http.StatusOK, get(r, "/act", alice).Code)
	assert.Equal(t, http.StatusOK, get(r, "/act", alice).Code)

	w := get(r, "/act", alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(r, "/act", bob).Code, "buckets are per actor")
}

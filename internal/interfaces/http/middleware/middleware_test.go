package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRecoveryWritesJSONBeforeOutput(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"1007"`)
}

func TestRecoveryKeepsStartedStream(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/sse", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "id: 1\n\n")
		panic("boom")
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/sse", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "id: 1\n\n", w.Body.String())
}

func TestAuthDisabledUsesHeader(t *testing.T) {
	engine := gin.New()
	engine.Use(Auth(AuthConfig{Enabled: false, SkipPaths: DefaultSkipPaths}))
	engine.GET("/api/v1/x", func(c *gin.Context) { c.String(http.StatusOK, GetUserIDFromGin(c)) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
	req.Header.Set("X-User-ID", "u1")
	assert.Equal(t, "u1", serve(engine, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
	assert.Equal(t, "anonymous", serve(engine, req).Body.String())
}

func TestAuthEnabledRejectsMissingBearer(t *testing.T) {
	engine := gin.New()
	engine.Use(Auth(AuthConfig{Enabled: true, Secret: "s", Issuer: "idp", SkipPaths: DefaultSkipPaths}))
	engine.GET("/api/v1/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"2003"`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
	req.Header.Set("Authorization", "Basic dTE6cHc=")
	w = serve(engine, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"2002"`)
	assert.Contains(t, w.Body.String(), `"details":"invalid authorization format"`)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = serve(engine, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"2002"`)

	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestStreamTokenBindsRequestID(t *testing.T) {
	jwt := utils.NewJWTManager("secret", "legal-rag-api")
	token, _, err := jwt.GenerateStreamToken("req-1", "u1", time.Minute)
	require.NoError(t, err)

	engine := gin.New()
	engine.GET("/stream/:request_id", StreamToken("secret", "legal-rag-api"), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserIDFromGin(c))
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/stream/req-1?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/stream/req-2?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"2005"`)

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/stream/req-1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type countingLimiter struct {
	keys []string
	max  int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.keys = append(l.keys, key)
	return len(l.keys) <= l.max, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{max: 1}
	engine := gin.New()
	engine.Use(func(c *gin.Context) { setUser(c, "u1"); c.Next() })
	engine.POST("/api/v1/chat/start", RateLimit(RateLimitConfig{Enabled: true, RequestsPerMinute: 1}, limiter), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	assert.Equal(t, http.StatusAccepted, serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/chat/start", nil)).Code)
	w := serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/chat/start", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"1006"`)
	assert.Equal(t, "ratelimit:u1:/api/v1/chat/start", limiter.keys[0])
}

func TestRateLimitFailsOpen(t *testing.T) {
	engine := gin.New()
	engine.GET("/x", RateLimit(RateLimitConfig{Enabled: true}, &countingLimiter{err: errors.New("redis down")}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestRequestIDPassThroughAndReplace(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("http_request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := serve(engine, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "bad id\nforged=1")
	w = serve(engine, req)
	assert.NotEqual(t, "bad id\nforged=1", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}

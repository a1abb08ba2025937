package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
)

func limitedRouter(l *limiter.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(l))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func hit(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_InMemory(t *testing.T) {
	l, err := NewRateLimiter("2-M")
	require.NoError(t, err)
	r := limitedRouter(l)

	assert.Equal(t, http.StatusOK, hit(r).Code)
	w := hit(r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r).Code)
}

func TestRateLimit_RedisSharedAcrossLimiters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first, err := NewRedisRateLimiter("2-M", client)
	require.NoError(t, err)
	second, err := NewRedisRateLimiter("2-M", client)
	require.NoError(t, err)

	// two replicas share one budget
	assert.Equal(t, http.StatusOK, hit(limitedRouter(first)).Code)
	assert.Equal(t, http.StatusOK, hit(limitedRouter(second)).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(limitedRouter(first)).Code)
}

func TestNewRateLimiter_RejectsBadFormat(t *testing.T) {
	_, err := NewRateLimiter("lots")
	assert.Error(t, err)
}

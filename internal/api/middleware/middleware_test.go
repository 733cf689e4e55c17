package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/config"
	"github.com/Teskh/production-sub001/pkg/jwt"
	"github.com/Teskh/production-sub001/pkg/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWTManager() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:      "middleware-test-secret-0123456789",
		AccessTokenTTL: time.Minute,
	})
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewFromUniversal(rdb, zap.NewNop()), mr
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("role")})
}

// ═══════════════════════════════════════════════════════════
// JWTAuth / RoleAuth
// ═══════════════════════════════════════════════════════════

func TestJWTAuth(t *testing.T) {
	mgr := newJWTManager()
	token, err := mgr.GenerateAccessToken("u-1", "admin")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/p", JWTAuth(mgr, nil), okHandler)

			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user_id":"u-1"`)
			}
		})
	}
}

func TestJWTAuth_Blacklisted(t *testing.T) {
	mgr := newJWTManager()
	token, err := mgr.GenerateAccessToken("u-1", "admin")
	require.NoError(t, err)
	claims, err := mgr.ParseToken(token)
	require.NoError(t, err)

	rdb, mr := newRedis(t)
	require.NoError(t, mr.Set("token:blacklist:"+claims.ID, "1"))

	r := gin.New()
	r.GET("/p", JWTAuth(mgr, rdb), okHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/p", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_RedisDownFailsOpen(t *testing.T) {
	mgr := newJWTManager()
	token, err := mgr.GenerateAccessToken("u-1", "viewer")
	require.NoError(t, err)

	rdb, mr := newRedis(t)
	mr.Close()

	r := gin.New()
	r.GET("/p", JWTAuth(mgr, rdb), okHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/p", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleAuth(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		status int
	}{
		{"no role", "", http.StatusUnauthorized},
		{"allowed", "supervisor", http.StatusOK},
		{"denied", "viewer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/p", func(c *gin.Context) {
				if tt.role != "" {
					c.Set("role", tt.role)
				}
				c.Next()
			}, RoleAuth("admin", "supervisor"), okHandler)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/p", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

// ═══════════════════════════════════════════════════════════
// RequestID
// ═══════════════════════════════════════════════════════════

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/p", RequestID(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/p", nil)
	req.Header.Set("X-Request-ID", "gw-123_abc.1")
	r.ServeHTTP(w, req)
	assert.Equal(t, "gw-123_abc.1", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "gw-123_abc.1", w.Body.String())

	for _, bad := range []string{"", strings.Repeat("a", 65), "id\nforged=1"} {
		w = httptest.NewRecorder()
		req = httptest.NewRequest("GET", "/p", nil)
		if bad != "" {
			req.Header.Set("X-Request-ID", bad)
		}
		r.ServeHTTP(w, req)

		rid := w.Header().Get("X-Request-ID")
		assert.Len(t, rid, 36)
		assert.NotEqual(t, bad, rid)
	}
}

// ═══════════════════════════════════════════════════════════
// BodyLimit
// ═══════════════════════════════════════════════════════════

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/p", BodyLimit(16), func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/p", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/p", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// ═══════════════════════════════════════════════════════════
// RateLimit
// ═══════════════════════════════════════════════════════════

func TestRateLimit(t *testing.T) {
	rdb, _ := newRedis(t)

	r := gin.New()
	r.POST("/compute", func(c *gin.Context) {
		c.Set("user_id", "u-1")
		c.Next()
	}, RateLimit(rdb, 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/compute", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_NilClientPassesThrough(t *testing.T) {
	r := gin.New()
	r.POST("/compute", RateLimit(nil, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/compute", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	rdb, mr := newRedis(t)
	mr.Close()

	r := gin.New()
	r.POST("/compute", RateLimit(rdb, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/compute", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

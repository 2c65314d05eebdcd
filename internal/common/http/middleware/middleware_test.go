package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnhub/internal/common/cache"
	commonmw "learnhub/internal/common/http/middleware"
	"learnhub/pkg/utils/contextkey"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type traceResponse struct {
	TraceID     string `json:"trace_id"`
	RequestID   string `json:"request_id"`
	Username    string `json:"username"`
	CtxTraceID  string `json:"ctx_trace_id"`
	CtxUsername string `json:"ctx_username"`
}

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())
	router.GET("/trace", func(c *gin.Context) {
		ctx := c.Request.Context()
		ctxTrace, _ := ctx.Value(contextkey.TraceID).(string)
		ctxUser, _ := ctx.Value(contextkey.Username).(string)
		c.JSON(http.StatusOK, traceResponse{
			TraceID:     c.GetString("trace_id"),
			RequestID:   c.GetString("request_id"),
			Username:    c.GetString("username"),
			CtxTraceID:  ctxTrace,
			CtxUsername: ctxUser,
		})
	})

	cases := []struct {
		name          string
		headers       map[string]string
		wantTraceID   string
		wantRequestID string
		wantUsername  string
	}{
		{name: "generate ids"},
		{
			name: "preserve ids and username",
			headers: map[string]string{
				"X-Trace-Id":   "trace-123",
				"X-Request-Id": "req-123",
				"X-Username":   " ada ",
			},
			wantTraceID:   "trace-123",
			wantRequestID: "req-123",
			wantUsername:  "ada",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			router.ServeHTTP(rec, req)

			var resp traceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.TraceID == "" || resp.RequestID == "" || resp.CtxTraceID != resp.TraceID {
				t.Fatalf("expected trace and request ids, got %+v", resp)
			}
			if tc.wantTraceID != "" && resp.TraceID != tc.wantTraceID {
				t.Fatalf("expected trace id %s, got %s", tc.wantTraceID, resp.TraceID)
			}
			if tc.wantRequestID != "" && resp.RequestID != tc.wantRequestID {
				t.Fatalf("expected request id %s, got %s", tc.wantRequestID, resp.RequestID)
			}
			if resp.Username != tc.wantUsername || resp.CtxUsername != tc.wantUsername {
				t.Fatalf("expected username %q, got %+v", tc.wantUsername, resp)
			}
			if rec.Header().Get("X-Trace-Id") != resp.TraceID {
				t.Fatalf("expected trace id header")
			}
			if rec.Header().Get("X-Request-Id") != resp.RequestID {
				t.Fatalf("expected request id header")
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	allowed := commonmw.CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:5173"}}
	allowed.ApplyDefaults()

	cases := []struct {
		name       string
		config     commonmw.CORSConfig
		method     string
		origin     string
		wantStatus int
		wantHeader bool
	}{
		{
			name:       "disabled cors",
			config:     commonmw.CORSConfig{Enabled: false},
			method:     http.MethodGet,
			origin:     "http://localhost:5173",
			wantStatus: http.StatusOK,
		},
		{
			name:       "allowed preflight",
			config:     allowed,
			method:     http.MethodOptions,
			origin:     "http://localhost:5173",
			wantStatus: http.StatusNoContent,
			wantHeader: true,
		},
		{
			name:       "allowed simple request",
			config:     allowed,
			method:     http.MethodGet,
			origin:     "http://localhost:5173",
			wantStatus: http.StatusOK,
			wantHeader: true,
		},
		{
			name:       "blocked preflight",
			config:     allowed,
			method:     http.MethodOptions,
			origin:     "https://denied.example",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(commonmw.CORSMiddleware(tc.config))
			router.GET("/resource", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			router.OPTIONS("/resource", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/resource", nil)
			req.Header.Set("Origin", tc.origin)
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tc.wantHeader && got != tc.origin {
				t.Fatalf("expected allow origin %s, got %q", tc.origin, got)
			}
			if !tc.wantHeader && got != "" {
				t.Fatalf("unexpected allow origin header %q", got)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	limiter := commonmw.NewRateLimiter(c, time.Second)
	policy := commonmw.RateLimitPolicy{Window: time.Minute, IPMax: 100, UserMax: 2}

	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())
	router.POST("/run", commonmw.RateLimitMiddleware(limiter, "run", policy), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(user string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/run", nil)
		req.Header.Set("X-Username", user)
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("ada"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send("ada"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("grace"); code != http.StatusOK {
		t.Fatalf("other user should pass, got %d", code)
	}

	mr.FastForward(2 * time.Minute)
	if code := send("ada"); code != http.StatusOK {
		t.Fatalf("window should reset, got %d", code)
	}
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	limiter := commonmw.NewRateLimiter(c, 100*time.Millisecond)
	mr.Close()

	router := gin.New()
	router.POST("/run", commonmw.RateLimitMiddleware(limiter, "run", commonmw.RateLimitPolicy{IPMax: 1}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("cache outage should not block, got %d", rec.Code)
		}
	}

	nilRouter := gin.New()
	nilRouter.POST("/run", commonmw.RateLimitMiddleware(nil, "run", commonmw.RateLimitPolicy{IPMax: 1}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	nilRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("nil limiter should pass, got %d", rec.Code)
	}
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const sampleConfig = `
server:
  addr: "127.0.0.1:0"
harness:
  maxConcurrent: 2
  queueWait: 1s
  languages:
    python:
      runTimeout: 4s
  archive:
    enabled: false
quiz:
  questionTTL: 30m
kafka:
  compression: zstd
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "learn_service.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Harness.MaxConcurrent != 2 || cfg.Harness.QueueWait != time.Second {
		t.Fatalf("inline harness settings not decoded: %+v", cfg.Harness.Settings)
	}
	if cfg.Harness.Languages["python"].RunTimeout != 4*time.Second {
		t.Fatalf("language override not decoded")
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout || cfg.Activity.Topic != defaultActivityTopic {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Server, cfg.Activity)
	}
	if cfg.Quiz.QuestionTTL != 30*time.Minute {
		t.Fatalf("quiz ttl: %v", cfg.Quiz.QuestionTTL)
	}
	if cfg.Kafka.Enabled() {
		t.Fatalf("kafka must be off without brokers")
	}
	if got := cfg.Kafka.toMQConfig().Compression; got != parseCompression("zstd") {
		t.Fatalf("compression: %v", got)
	}
}

func TestLoadAppConfigArchiveNeedsMinIO(t *testing.T) {
	_, err := loadAppConfig(writeConfig(t, "harness:\n  archive:\n    enabled: true\n"))
	if err == nil || !strings.Contains(err.Error(), "minio") {
		t.Fatalf("expected minio error, got %v", err)
	}
}

func TestRouterWithInMemoryBackends(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := loadAppConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	svcs, err := buildServices(context.Background(), cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	router := buildRouter(cfg, svcs)

	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/progress/alice", "", http.StatusOK},
		{http.MethodGet, "/api/v1/learning/challenge?username=alice&topic=Loops", "", http.StatusOK},
		{http.MethodPost, "/api/v1/activity/log", `{"username":"alice","action":"general"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/activity/history/alice", "", http.StatusOK},
		{http.MethodPost, "/api/v1/ai/generate-challenge", `{"topic":"Strings"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/quiz/generate", `{}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/admin/archives", "", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/ai/run-tests", `{"language":"python","functionName":"f","code":"","testCases":[]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Errorf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.status, w.Code, w.Body.String())
		}
	}
}

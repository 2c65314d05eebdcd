package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"learnhub/internal/activity/model"
	"learnhub/internal/activity/repository"
	"learnhub/internal/activity/service"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d, err := service.NewMemoryDeduper()
	if err != nil {
		t.Fatalf("deduper: %v", err)
	}
	svc := service.NewActivityService(service.Config{Repo: repository.NewMemoryRepository(), Deduper: d})
	h := NewActivityController(svc)
	r := gin.New()
	r.POST("/api/v1/activity/log", h.Log)
	r.GET("/api/v1/activity/history/:username", h.History)
	return r
}

func call(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, env
}

func TestLogAndHistory(t *testing.T) {
	r := newRouter(t)
	body := `{"username":"alice","action":"file_upload","requestId":"up-1","details":{"name":"a.py"}}`
	code, env := call(t, r, http.MethodPost, "/api/v1/activity/log", body)
	if code != http.StatusOK {
		t.Fatalf("log: %d %+v", code, env)
	}
	code, env = call(t, r, http.MethodPost, "/api/v1/activity/log", body)
	if code != http.StatusOK || env.Message != "Duplicate activity suppressed" {
		t.Fatalf("expected duplicate message, got %d %q", code, env.Message)
	}

	code, env = call(t, r, http.MethodGet, "/api/v1/activity/history/alice?limit=5", "")
	if code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	var data struct {
		Items []model.Activity `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Items) != 1 || data.Items[0].Action != model.ActionFileUpload {
		t.Fatalf("unexpected history: %+v", data.Items)
	}
	if string(data.Items[0].Details) != `{"name":"a.py"}` {
		t.Fatalf("details not kept: %s", data.Items[0].Details)
	}
}

func TestLogRejectsUnknownAction(t *testing.T) {
	r := newRouter(t)
	code, _ := call(t, r, http.MethodPost, "/api/v1/activity/log", `{"username":"a","action":"dance"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestHistoryBadLimit(t *testing.T) {
	r := newRouter(t)
	code, _ := call(t, r, http.MethodGet, "/api/v1/activity/history/alice?limit=x", "")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

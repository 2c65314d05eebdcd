package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Sure! Here it is: {"a":{"b":"}"}} hope it helps {"c":2}`, `{"a":{"b":"}"}}`},
		{"escaped quote", `{"s":"say \"{hi}\""}`, `{"s":"say \"{hi}\""}`},
		{"skips invalid", `{not json} {"ok":true}`, `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestExtractJSONFailsClosed(t *testing.T) {
	for _, in := range []string{"", "no json here", `{"open":`, "[1,2,3]"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Fatalf("%q: expected ErrNoJSON, got %v", in, err)
		}
	}
}

func TestClientComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"x\":1}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "m1"})
	text, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{MaxTokens: 50})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != `{"x":1}` {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != "m1" || got.MaxTokens != 50 || len(got.Messages) != 1 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestClientErrors(t *testing.T) {
	if _, err := NewClient(Config{}).Complete(context.Background(), nil, Options{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	if _, err := c.Complete(context.Background(), nil, Options{}); err == nil {
		t.Fatalf("expected status error")
	}
}

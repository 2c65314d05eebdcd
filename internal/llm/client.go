// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"learnhub/pkg/utils/logger"

	"github.com/zeromicro/go-zero/rest/httpc"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 1500
	maxErrorBody     = 512
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("llm client is not configured")

// Config configures the client.
type Config struct {
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options override per-call sampling settings.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer returns the text of one chat completion.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	Enabled() bool
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client is an OpenAI-compatible chat client.
type Client struct {
	cfg     Config
	service httpc.Service
}

// NewClient creates a client. A client without an API key reports Enabled() == false.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiKey := cfg.APIKey
	service := httpc.NewServiceWithClient("llm", &http.Client{Timeout: cfg.Timeout},
		func(r *http.Request) *http.Request {
			r.Header.Set("Authorization", "Bearer "+apiKey)
			r.Header.Set("Content-Type", "application/json")
			return r
		})
	return &Client{cfg: cfg, service: service}
}

// Enabled reports whether the client can make calls.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// Complete sends messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if opts.Temperature > 0 {
		body.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		body.MaxTokens = opts.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}

	start := time.Now()
	resp, err := c.service.DoRequest(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("chat request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	logger.Debug(ctx, "llm completion finished",
		zap.String("model", c.cfg.Model),
		zap.Duration("duration", time.Since(start)),
	)
	return out.Choices[0].Message.Content, nil
}

// Package llm is a thin client for the OpenAI chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

// ErrEmptyCompletion is returned when the provider answers without content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is a single-turn prompt.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks the model for a JSON object response.
	JSON bool
}

// Completion is the model's reply.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Completer produces completions. *Client implements it.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   httputil.RetryConfig
}

// Client calls the chat completions endpoint through a resilient transport.
type Client struct {
	http    *httputil.ResilientClient
	baseURL string
	apiKey  string
	model   string
}

var _ Completer = (*Client)(nil)

// New creates a client. An API key is required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http: httputil.NewResilientClient(httputil.ResilientClientConfig{
			BaseClient:  &http.Client{Timeout: cfg.Timeout},
			RetryConfig: cfg.Retry,
		}),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Complete sends req and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	body := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Completion{}, fmt.Errorf("encode completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Completion{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Completion{}, apperrors.Upstream("openai", err)
	}
	var raw []byte
	if err := httputil.DecodeResponse(resp, &raw); err != nil {
		return Completion{}, apperrors.Upstream("openai", err)
	}

	parsed := gjson.ParseBytes(raw)
	content := strings.TrimSpace(parsed.Get("choices.0.message.content").String())
	if content == "" {
		return Completion{}, apperrors.Upstream("openai", ErrEmptyCompletion)
	}
	model := parsed.Get("model").String()
	if model == "" {
		model = c.model
	}
	return Completion{
		Content:          content,
		Model:            model,
		PromptTokens:     parsed.Get("usage.prompt_tokens").Int(),
		CompletionTokens: parsed.Get("usage.completion_tokens").Int(),
	}, nil
}

// ExtractJSON returns the first JSON object embedded in s, tolerating code
// fences and prose around it.
func ExtractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return "", false
	}
	return candidate, true
}

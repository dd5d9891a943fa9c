// Package email sends plain-text transactional email through Resend.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers messages. *Client implements it.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Config configures the Resend client.
type Config struct {
	APIKey  string
	From    string
	BaseURL string
	Retry   httputil.RetryConfig
}

// Client calls the Resend emails endpoint.
type Client struct {
	http    *httputil.ResilientClient
	baseURL string
	apiKey  string
	from    string
}

var _ Sender = (*Client)(nil)

// New creates a client. An API key and sender address are required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("resend api key not configured")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("resend sender address not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	return &Client{
		http: httputil.NewResilientClient(httputil.ResilientClientConfig{
			BaseClient:  &http.Client{Timeout: 15 * time.Second},
			RetryConfig: cfg.Retry,
		}),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.From,
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send delivers msg and returns the provider's message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", apperrors.Validation("email recipient is required")
	}
	payload, err := json.Marshal(sendRequest{From: c.from, To: []string{msg.To}, Subject: msg.Subject, Text: msg.Text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Upstream("resend", err)
	}
	var raw []byte
	if err := httputil.DecodeResponse(resp, &raw); err != nil {
		return "", apperrors.Upstream("resend", err)
	}
	return gjson.GetBytes(raw, "id").String(), nil
}

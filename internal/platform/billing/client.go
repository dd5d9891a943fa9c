// Package billing talks to Stripe's REST API using form-encoded requests and
// verifies Stripe webhook deliveries.
package billing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

// Config configures the Stripe client.
type Config struct {
	SecretKey  string
	PriceID    string
	BaseURL    string
	SuccessURL string
	CancelURL  string
	Retry      httputil.RetryConfig
}

// CheckoutParams describes who is buying.
type CheckoutParams struct {
	UserID     string
	Email      string
	CustomerID string
}

// CheckoutSession is a created Checkout Session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SubscriptionInfo is the subset of a Stripe subscription the service needs.
type SubscriptionInfo struct {
	ID                string
	CustomerID        string
	Status            string
	UserID            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// Client is a minimal Stripe client.
type Client struct {
	http       *httputil.ResilientClient
	baseURL    string
	secretKey  string
	priceID    string
	successURL string
	cancelURL  string
}

// New creates a client. A secret key and price id are required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe secret key not configured")
	}
	if strings.TrimSpace(cfg.PriceID) == "" {
		return nil, fmt.Errorf("stripe price id not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com/v1"
	}
	return &Client{
		http: httputil.NewResilientClient(httputil.ResilientClientConfig{
			BaseClient:  &http.Client{Timeout: 20 * time.Second},
			RetryConfig: cfg.Retry,
		}),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		priceID:    cfg.PriceID,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

// CreateCheckoutSession starts a subscription checkout for the pro price.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", c.priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("client_reference_id", p.UserID)
	form.Set("metadata[user_id]", p.UserID)
	form.Set("subscription_data[metadata][user_id]", p.UserID)
	if p.CustomerID != "" {
		form.Set("customer", p.CustomerID)
	} else if p.Email != "" {
		form.Set("customer_email", p.Email)
	}

	raw, err := c.post(ctx, "/checkout/sessions", form)
	if err != nil {
		return CheckoutSession{}, err
	}
	obj := gjson.ParseBytes(raw)
	session := CheckoutSession{ID: obj.Get("id").String(), URL: obj.Get("url").String()}
	if session.URL == "" {
		return CheckoutSession{}, apperrors.Upstream("stripe", fmt.Errorf("checkout session %q has no url", session.ID))
	}
	return session, nil
}

// CancelAtPeriodEnd flags the subscription to end with the current period.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (SubscriptionInfo, error) {
	form := url.Values{}
	form.Set("cancel_at_period_end", "true")
	raw, err := c.post(ctx, "/subscriptions/"+url.PathEscape(subscriptionID), form)
	if err != nil {
		return SubscriptionInfo{}, err
	}
	return SubscriptionFromObject(gjson.ParseBytes(raw)), nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Upstream("stripe", err)
	}
	var raw []byte
	if err := httputil.DecodeResponse(resp, &raw); err != nil {
		return nil, apperrors.Upstream("stripe", err)
	}
	return raw, nil
}

// SubscriptionFromObject reads a Stripe subscription object.
func SubscriptionFromObject(obj gjson.Result) SubscriptionInfo {
	info := SubscriptionInfo{
		ID:                obj.Get("id").String(),
		CustomerID:        obj.Get("customer").String(),
		Status:            obj.Get("status").String(),
		UserID:            obj.Get("metadata.user_id").String(),
		CancelAtPeriodEnd: obj.Get("cancel_at_period_end").Bool(),
	}
	// Newer API versions moved the period onto subscription items.
	end := obj.Get("current_period_end")
	if !end.Exists() {
		end = obj.Get("items.data.0.current_period_end")
	}
	if end.Exists() && end.Int() > 0 {
		t := time.Unix(end.Int(), 0).UTC()
		info.CurrentPeriodEnd = &t
	}
	return info
}

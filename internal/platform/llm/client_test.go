package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

func fastRetry() httputil.RetryConfig {
	return httputil.RetryConfig{
		MaxRetries:           2,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           time.Millisecond,
		BackoffMultiplier:    1,
		RetryableStatusCodes: []int{http.StatusInternalServerError, http.StatusTooManyRequests},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCompleteParsesFirstChoice(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"gpt-4o-mini-2024","choices":[{"message":{"role":"assistant","content":"  {\"score\":80}  "}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`)
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Retry: fastRetry()})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), Request{System: "grade", User: "answer", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"score":80}`, out.Content)
	assert.Equal(t, "gpt-4o-mini-2024", out.Model)
	assert.EqualValues(t, 12, out.PromptTokens)
	assert.EqualValues(t, 5, out.CompletionTokens)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "answer", "retried requests must resend the body")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), Request{User: "answer"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
	assert.Equal(t, client.Model(), out.Model)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCompleteUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{User: "x"})
	require.Error(t, err)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeUpstream, se.Code)
	assert.Equal(t, http.StatusBadGateway, se.HTTPStatus)
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), Request{User: "x"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestExtractJSON(t *testing.T) {
	got, ok := ExtractJSON("Here you go:\n```json\n{\"score\": 70, \"summary\": \"fine\"}\n```")
	require.True(t, ok)
	assert.Equal(t, `{"score": 70, "summary": "fine"}`, got)

	_, ok = ExtractJSON("no json here")
	assert.False(t, ok)

	_, ok = ExtractJSON("{broken")
	assert.False(t, ok)
}

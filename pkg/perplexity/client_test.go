package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer answers every request with status/body and keeps the last
// decoded request.
func captureServer(t *testing.T, status int, body string) (*httptest.Server, *ChatCompletionRequest, *atomic.Int32) {
	t.Helper()
	var (
		last  ChatCompletionRequest
		calls atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &last, &calls
}

var userMsg = []Message{{Role: "user", Content: "Research Dana Whitfield."}}

func TestChatCompletion(t *testing.T) {
	srv, last, _ := captureServer(t, http.StatusOK, `{
		"id": "cmpl-1",
		"model": "sonar-pro",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Dana sits on two audit committees. "}}],
		"citations": ["https://news.example/dana", "https://board.example/dana"],
		"usage": {"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52}
	}`)

	c := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:            userMsg,
		SearchRecencyFilter: RecencyMonth,
	})
	require.NoError(t, err)

	assert.Equal(t, "cmpl-1", resp.ID)
	assert.Equal(t, "Dana sits on two audit committees.", resp.Text())
	assert.Equal(t, []string{"https://news.example/dana", "https://board.example/dana"}, resp.Citations)
	assert.Equal(t, 52, resp.Usage.TotalTokens)

	assert.Equal(t, defaultModel, last.Model)
	assert.Equal(t, RecencyMonth, last.SearchRecencyFilter)
	assert.Nil(t, last.Temperature)
}

func TestChatCompletion_Options(t *testing.T) {
	srv, last, _ := captureServer(t, http.StatusOK, `{"choices": []}`)

	c := NewClient("test-key", WithBaseURL(srv.URL), WithModel("sonar"), WithModel(""))
	temp, maxTokens := 0.2, 300
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:           userMsg,
		Temperature:        &temp,
		MaxTokens:          &maxTokens,
		SearchDomainFilter: []string{"linkedin.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Text())

	assert.Equal(t, "sonar", last.Model)
	require.NotNil(t, last.Temperature)
	assert.InDelta(t, 0.2, *last.Temperature, 1e-9)
	require.NotNil(t, last.MaxTokens)
	assert.Equal(t, 300, *last.MaxTokens)
	assert.Equal(t, []string{"linkedin.com"}, last.SearchDomainFilter)

	_, err = c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "sonar-reasoning", Messages: userMsg})
	require.NoError(t, err)
	assert.Equal(t, "sonar-reasoning", last.Model)
}

func TestChatCompletion_APIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "rate limit exceeded", "type": "rate_limit"}}`, "rate limit exceeded", true},
		{"server error", http.StatusBadGateway, `upstream unavailable`, "upstream unavailable", true},
		{"unauthorized", http.StatusUnauthorized, `{"error": {"message": "invalid api key"}}`, "invalid api key", false},
		{"bad request", http.StatusBadRequest, `{"detail": "bad filter"}`, "bad filter", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, calls := captureServer(t, tt.status, tt.body)
			_, err := NewClient("test-key", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{Messages: userMsg})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, int32(1), calls.Load(), "the client makes a single attempt")
		})
	}
}

func TestNewAPIErrorTruncatesBody(t *testing.T) {
	e := newAPIError(http.StatusInternalServerError, []byte(strings.Repeat("x", 5000)))
	assert.Len(t, e.Body, maxErrorBody)
	assert.Empty(t, e.Message)
}

func TestChatCompletion_Malformed(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, `{not json`)
	_, err := NewClient("test-key", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{Messages: userMsg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestChatCompletion_NoMessages(t *testing.T) {
	srv, _, calls := captureServer(t, http.StatusOK, `{}`)
	_, err := NewClient("test-key", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestChatCompletion_ContextCancelled(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient("test-key", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{Messages: userMsg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestNewClientDefaults(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("k", WithBaseURL(""), WithHTTPClient(hc)).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultModel, c.model)
	assert.Same(t, hc, c.http)
}

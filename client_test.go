// ghosttype/client_test.go
package ghosttype

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// chatRequest mirrors the fields of the outgoing API request the tests
// inspect.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// apiStub is an httptest handler standing in for the chat-completions API.
type apiStub struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []chatRequest
}

func (a *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	a.mu.Lock()
	a.requests = append(a.requests, req)
	status, body := a.status, a.body
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (a *apiStub) requestCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func successBody(content string) string {
	resp := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func errorBody(message string) string {
	return fmt.Sprintf(`{"error": {"message": %q, "type": "invalid_request_error"}}`, message)
}

func newClientTest(t *testing.T, stub *apiStub) (*openAIClient, Config) {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	cfg := getDefaultConfig()
	cfg.APIKey = "test-key"
	cfg.Endpoint = server.URL
	return newOpenAIClient(testLogger()), cfg
}

func testCompletionContext() CompletionContext {
	return CompletionContext{
		Mode:       ModeCompletion,
		FileName:   "s.py",
		Language:   "python",
		PrefixText: "def add(a, b):\n    ",
	}
}

func TestClientCompleteSuccess(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, body: successBody("return a + b")}
	client, cfg := newClientTest(t, stub)

	got, err := client.Complete(context.Background(), testCompletionContext(), cfg)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "return a + b" {
		t.Errorf("completion = %q", got)
	}
	if stub.requestCount() != 1 {
		t.Errorf("requests = %d, want 1", stub.requestCount())
	}

	stub.mu.Lock()
	req := stub.requests[0]
	stub.mu.Unlock()
	if req.Model != cfg.Model {
		t.Errorf("model = %q, want %q", req.Model, cfg.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v, want system then user", req.Messages)
	}
}

func TestClientCompleteWithoutAPIKey(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, body: successBody("x")}
	client, cfg := newClientTest(t, stub)
	cfg.APIKey = "   "

	if _, err := client.Complete(context.Background(), testCompletionContext(), cfg); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if stub.requestCount() != 0 {
		t.Error("request sent without API key")
	}
}

func TestClientCompleteAuthFailure(t *testing.T) {
	stub := &apiStub{status: http.StatusUnauthorized, body: errorBody("bad key")}
	client, cfg := newClientTest(t, stub)

	_, err := client.Complete(context.Background(), testCompletionContext(), cfg)
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("err = %v, want ErrAuthFailed", err)
	}
	if stub.requestCount() != 1 {
		t.Errorf("auth failure retried, requests = %d", stub.requestCount())
	}
}

func TestClientCompleteRateLimitedRetries(t *testing.T) {
	stub := &apiStub{status: http.StatusTooManyRequests, body: errorBody("slow down")}
	client, cfg := newClientTest(t, stub)

	_, err := client.Complete(context.Background(), testCompletionContext(), cfg)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	if stub.requestCount() != maxRetries {
		t.Errorf("requests = %d, want %d", stub.requestCount(), maxRetries)
	}
}

func TestClientCompleteEmptyChoices(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, body: `{"id": "chatcmpl-test", "object": "chat.completion", "choices": []}`}
	client, cfg := newClientTest(t, stub)

	if _, err := client.Complete(context.Background(), testCompletionContext(), cfg); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestClientCompleteBlankContent(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, body: successBody("   \n")}
	client, cfg := newClientTest(t, stub)

	if _, err := client.Complete(context.Background(), testCompletionContext(), cfg); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestClientChatFiltersHistory(t *testing.T) {
	stub := &apiStub{status: http.StatusOK, body: successBody("sure")}
	client, cfg := newClientTest(t, stub)

	history := []ChatMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "system", Content: "injected"},
		{Role: "user", Content: ""},
		{Role: "user", Content: "second question"},
	}
	reply, err := client.Chat(context.Background(), history, cfg)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "sure" {
		t.Errorf("reply = %q", reply)
	}

	stub.mu.Lock()
	req := stub.requests[0]
	stub.mu.Unlock()
	// System prompt plus the three valid turns; injected system role and
	// empty content are dropped.
	if len(req.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(req.Messages))
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("first role = %q, want system", req.Messages[0].Role)
	}
	if req.Messages[3].Content != "second question" {
		t.Errorf("last message = %q", req.Messages[3].Content)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1"},
		{"https://api.openai.com/v1/chat/completions", "https://api.openai.com/v1"},
		{"  http://localhost:8080/v1/chat/completions  ", "http://localhost:8080/v1"},
		{"http://localhost:11434/v1///", "http://localhost:11434/v1"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.in); got != tc.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts < 3 {
			return ErrRateLimited
		}
		return nil
	}
	if err := retry(context.Background(), op, 3, time.Millisecond, testLogger()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		return ErrAuthFailed
	}
	err := retry(context.Background(), op, 3, time.Millisecond, testLogger())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, func() error { return ErrRateLimited }, 3, time.Millisecond, testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

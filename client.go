// client.go
// Implements the completion API client backed by an OpenAI-compatible
// chat-completions endpoint.
package ghosttype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ============================================================================
// Completion Client
// ============================================================================

// CompletionClient defines the interface for sending prompts to the AI
// backend.
type CompletionClient interface {
	// Complete sends one request built from compCtx and returns the raw
	// model output. Mode-specific prompts, temperature, and token limits
	// are derived from compCtx and cfg.
	Complete(ctx context.Context, compCtx CompletionContext, cfg Config) (string, error)
	// Chat sends a conversational exchange; history carries prior turns,
	// ending with the current user message.
	Chat(ctx context.Context, history []ChatMessage, cfg Config) (string, error)
}

// openAIClient implements CompletionClient using the chat-completions API.
type openAIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// newOpenAIClient creates the default production client with a tuned
// transport shared across requests.
func newOpenAIClient(logger *slog.Logger) *openAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &openAIClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				MaxIdleConns:          20,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		logger: logger.With("component", "openAIClient"),
	}
}

// normalizeEndpoint reduces a configured endpoint to the API base URL.
// Values already carrying the /chat/completions path are accepted so the
// path is never doubled when the SDK appends it.
func normalizeEndpoint(endpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	return strings.TrimRight(base, "/")
}

func (c *openAIClient) api(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = normalizeEndpoint(cfg.Endpoint)
	clientCfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(clientCfg)
}

// Complete implements CompletionClient.
func (c *openAIClient) Complete(ctx context.Context, compCtx CompletionContext, cfg Config) (string, error) {
	opLogger := c.logger.With("operation", "Complete", "mode", string(compCtx.Mode), "file", compCtx.FileName)
	if strings.TrimSpace(cfg.APIKey) == "" {
		opLogger.Warn("Completion requested without configured API key")
		return "", ErrNotConfigured
	}

	system, user := promptForMode(compCtx, opLogger)
	temperature, maxTokens := cfg.ChatTemp, cfg.ChatMaxTokens
	if compCtx.Mode == ModeCompletion {
		temperature, maxTokens = cfg.CompletionTemp, cfg.CompletionMaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
		Stream:      false,
	}
	return c.send(ctx, req, cfg, opLogger)
}

// Chat implements CompletionClient.
func (c *openAIClient) Chat(ctx context.Context, history []ChatMessage, cfg Config) (string, error) {
	opLogger := c.logger.With("operation", "Chat", "turns", len(history))
	if strings.TrimSpace(cfg.APIKey) == "" {
		return "", ErrNotConfigured
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem, Content: chatSystemPrompt,
	})
	for _, m := range history {
		role := m.Role
		if role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: float32(cfg.ChatTemp),
		MaxTokens:   cfg.ChatMaxTokens,
		Stream:      false,
	}
	return c.send(ctx, req, cfg, opLogger)
}

// send performs the API call with the shared timeout and error mapping.
func (c *openAIClient) send(ctx context.Context, req openai.ChatCompletionRequest, cfg Config, logger *slog.Logger) (string, error) {
	apiCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()

	start := time.Now()
	var resp openai.ChatCompletionResponse
	apiCallFunc := func() error {
		var callErr error
		resp, callErr = c.api(cfg).CreateChatCompletion(apiCtx, req)
		if callErr != nil {
			return mapAPIError(callErr, apiCtx)
		}
		return nil
	}
	if err := retry(apiCtx, apiCallFunc, maxRetries, retryDelay, logger); err != nil {
		logger.Warn("Chat completion call failed", "error", err, "duration", time.Since(start))
		return "", err
	}
	logger.Debug("Chat completion call succeeded", "duration", time.Since(start))

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrEmptyResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: blank message content", ErrEmptyResponse)
	}
	return content, nil
}

// mapAPIError translates SDK and transport errors into the module's
// sentinel taxonomy.
func mapAPIError(err error, ctx context.Context) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		default:
			return fmt.Errorf("%w: status %d: %s", ErrAPI, apiErr.HTTPStatusCode, apiErr.Message)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrAuthFailed, reqErr.Err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, reqErr.Err)
		default:
			return fmt.Errorf("%w: status %d: %v", ErrAPI, reqErr.HTTPStatusCode, reqErr.Err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrAPI, err)
}

// ============================================================================
// Retry Helper
// ============================================================================

// retry executes operation with bounded retries for retryable failures
// (rate limiting and transient API errors), honoring ctx between attempts.
func retry(ctx context.Context, operation func() error, maxAttempts int, delay time.Duration, logger *slog.Logger) error {
	var lastErr error
	if logger == nil {
		logger = slog.Default()
	}

	for i := 0; i < maxAttempts; i++ {
		attemptLogger := logger.With("attempt", i+1, "max_attempts", maxAttempts)
		select {
		case <-ctx.Done():
			attemptLogger.Warn("Context cancelled before attempt", "error", ctx.Err())
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			attemptLogger.Warn("Attempt failed due to context error. Not retrying.", "error", lastErr)
			return lastErr
		}

		isRetryable := errors.Is(lastErr, ErrRateLimited)
		var apiErr *openai.APIError
		if errors.As(lastErr, &apiErr) && apiErr.HTTPStatusCode == http.StatusServiceUnavailable {
			isRetryable = true
		}
		if !isRetryable {
			attemptLogger.Warn("Attempt failed with non-retryable error.", "error", lastErr)
			return lastErr
		}
		if i == maxAttempts-1 {
			break
		}

		attemptLogger.Warn("Attempt failed with retryable error. Retrying...", "error", lastErr, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	logger.Error("Operation failed after all retries.", "retries", maxAttempts, "final_error", lastErr)
	return fmt.Errorf("operation failed after %d retries: %w", maxAttempts, lastErr)
}

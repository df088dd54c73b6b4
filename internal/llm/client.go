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

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/risk"
)

// Client communicates with an OpenAI-compatible chat completions API.
// One attempt per call; retries are the caller's responsibility.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breakers    *risk.BreakerManager
}

// ClientConfig contains configuration for the reasoning client
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Breakers    *risk.BreakerManager
}

// CallOptions override the client defaults for a single call. Zero
// values keep the defaults.
type CallOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewClient creates a reasoning client
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = "https://api.deepseek.com/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "deepseek-chat"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient:  &http.Client{Timeout: config.Timeout},
		breakers:    config.Breakers,
	}
}

// Complete sends one chat completion request. Outbound text is sanitized
// before transmission and HTTP 451 surfaces as a regional-block error.
func (c *Client) Complete(ctx context.Context, system, user string, opts *CallOptions) (*Completion, error) {
	request := ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: SanitizeText(system)},
			{Role: "user", Content: SanitizeText(user)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if opts != nil {
		if opts.Temperature > 0 {
			request.Temperature = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			request.MaxTokens = opts.MaxTokens
		}
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
	}

	start := time.Now()
	completion, err := c.execute(ctx, &request)
	duration := time.Since(start)
	metrics.RecordLLMRequest(float64(duration.Milliseconds()), err)
	if err != nil {
		return nil, err
	}

	completion.Duration = duration
	log.Debug().
		Str("model", completion.Model).
		Int("prompt_tokens", completion.PromptTokens).
		Int("completion_tokens", completion.CompletionTokens).
		Dur("duration", duration).
		Msg("LLM request completed")
	return completion, nil
}

// execute runs the request through the llm circuit breaker when one is
// configured.
func (c *Client) execute(ctx context.Context, request *ChatRequest) (*Completion, error) {
	if c.breakers == nil {
		return c.doRequest(ctx, request)
	}

	result, err := c.breakers.LLM().Execute(func() (interface{}, error) {
		return c.doRequest(ctx, request)
	})
	c.breakers.Metrics().RecordRequest("llm", err == nil)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Kind: KindTransient, Message: "llm circuit open", Err: err}
		}
		return nil, err
	}
	return result.(*Completion), nil
}

func (c *Client) doRequest(ctx context.Context, request *ChatRequest) (*Completion, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("endpoint", c.endpoint).
		Str("model", request.Model).
		Int("message_count", len(request.Messages)).
		Msg("Sending LLM request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		message := apiErrorMessage(body)
		return nil, &Error{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: message,
		}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in LLM response")
	}

	return &Completion{
		Content:          chatResp.Choices[0].Message.Content,
		Model:            chatResp.Model,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// apiErrorMessage extracts the API's error message, falling back to the
// raw body.
func apiErrorMessage(body []byte) string {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// ParseJSONResponse parses a JSON document from LLM output, tolerating
// markdown code fences around it.
func ParseJSONResponse(content string, target interface{}) error {
	content = extractJSONFromMarkdown(content)
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// extractJSONFromMarkdown extracts the body of a ```json or ``` fence
func extractJSONFromMarkdown(content string) string {
	start := -1
	if idx := strings.Index(content, "```json"); idx >= 0 {
		start = idx + 7
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		start = idx + 3
	}
	if start >= 0 {
		if idx := strings.Index(content[start:], "```"); idx >= 0 {
			content = content[start : start+idx]
		}
	}
	return strings.TrimSpace(content)
}

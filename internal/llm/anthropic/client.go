// Package anthropic is a minimal client for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/policy/ratelimit"
	"github.com/tesfandiari1/llms.txt/internal/policy/retry"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	limiterKey     = "anthropic"
	maxErrorBody   = 2048
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single HTTP attempt. Callers usually set a tighter
	// deadline on the context.
	Timeout time.Duration
}

// Client calls POST /v1/messages.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   *retry.Policy
	logger  *zap.Logger
}

// New creates a Client. limiter may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry.NewPolicy(5, 500*time.Millisecond, 8*time.Second),
		logger:  logger.Named("anthropic"),
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Complete sends one user message and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var resp messagesResponse
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return err
		}
		return c.post(ctx, body, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if resp.StopReason == "max_tokens" {
		c.logger.Debug("completion truncated", zap.String("model", model), zap.Int("max_tokens", maxTokens))
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *Client) post(ctx context.Context, body []byte, out *messagesResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("anthropic request failed", zap.Int("status", resp.StatusCode))
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

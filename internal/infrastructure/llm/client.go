package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 400

// Config configures the shared chat completions client.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	DebugIDs bool
	// OnUsage, when set, receives token usage per successful call.
	OnUsage func(model string, tokens int)
}

// Client is an OpenAI-compatible chat completions client. A single instance
// serves every council model; the model id is passed through unchanged so
// routed endpoints (OpenRouter) can dispatch on the provider prefix.
type Client struct {
	baseURL  string
	apiKey   string
	debugIDs bool
	onUsage  func(string, int)
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates the shared upstream client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	// Tolerate a pasted full endpoint URL.
	baseURL = strings.TrimSuffix(baseURL, "/chat/completions")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		debugIDs: cfg.DebugIDs,
		onUsage:  cfg.OnUsage,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(zap.String("component", "llm_client")),
	}
}

// Compile-time interface check
var _ service.ChatClient = (*Client)(nil)

// Chat performs one non-streaming completion call.
// An empty answer is not an error: degraded stage handling lives upstream.
func (c *Client) Chat(ctx context.Context, req service.ChatRequest) (string, error) {
	if c.apiKey == "" {
		return "", service.ClassifyError(fmt.Errorf("api key missing"), req.Model)
	}

	apiReq := &Request{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, Message{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", service.ClassifyError(err, req.Model)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", service.ClassifyError(fmt.Errorf("read response: %w", err), req.Model)
	}

	if resp.StatusCode != http.StatusOK {
		return "", service.NewLLMStatusError(req.Model, resp.StatusCode, truncate(string(respBody), maxErrorBody))
	}

	return c.extractText(req.Model, respBody)
}

// extractText normalizes the primary content path and falls back to deep
// extraction when the content is missing or a provider-id artifact.
func (c *Client) extractText(model string, body []byte) (string, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", service.ClassifyError(fmt.Errorf("parse response: %w", err), model)
	}

	text := ""
	if len(apiResp.Choices) > 0 {
		text = NormalizeContent(apiResp.Choices[0].Message.Content)
	}

	if c.onUsage != nil {
		if total := apiResp.Usage.Total(); total > 0 {
			c.onUsage(model, total)
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed != "" && !IsProviderArtifact(trimmed) {
		return text, nil
	}

	if trimmed != "" && c.debugIDs {
		c.logger.Debug("Discarded provider-id artifact",
			zap.String("model", model),
			zap.String("artifact", trimmed),
		)
	}

	if deep := DeepExtract(body); deep != "" {
		return deep, nil
	}
	return "", nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

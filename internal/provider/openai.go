package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/ratelimiter"
)

// ChatClient calls an OpenAI-compatible /chat/completions endpoint.
// The base URL is injected from config so tests can point to a local mock.
type ChatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *ratelimiter.Limiters
}

func NewChatClient(baseURL, apiKey, model string, timeout time.Duration, limiter *ratelimiter.Limiters) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enrich sends the analysis prompt and parses the first choice.
func (c *ChatClient) Enrich(ctx context.Context, renderedText string) (domain.Enrichment, error) {
	if err := c.limiter.Wait(ctx, ratelimiter.UpstreamEnrichment); err != nil {
		return domain.Enrichment{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(renderedText)}},
		Temperature: 0.2,
	})
	if err != nil {
		return domain.Enrichment{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Enrichment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Enrichment{}, fmt.Errorf("%w: %v", domain.ErrEnrichmentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Enrichment{}, fmt.Errorf("%w: status %s: %s",
			domain.ErrEnrichmentUnavailable, resp.Status, strings.TrimSpace(string(msg)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Enrichment{}, fmt.Errorf("%w: decode response: %v", domain.ErrEnrichmentUnavailable, err)
	}
	if len(out.Choices) == 0 {
		return domain.Enrichment{}, fmt.Errorf("%w: no choices in response", domain.ErrUnusableEnrichment)
	}

	return ParseEnrichment(out.Choices[0].Message.Content)
}

// compile-time check that ChatClient implements Enricher
var _ Enricher = (*ChatClient)(nil)

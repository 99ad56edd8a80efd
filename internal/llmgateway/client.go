// Package llmgateway is a thin client contract for the platform's LLM
// provider. The admission middleware sits in front of calls through this
// client; the client itself carries no prompt or response
// logic beyond shaping the request and reporting token usage, mirroring
// the descriptor-based shape used elsewhere in the ecosystem for
// rate-limiting LLM traffic by request and token cost.
package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CompletionRequest is the minimal shape the admission gate needs to know
// about: which model, and how many tokens are expected to be requested is
// left to the caller.
type CompletionRequest struct {
	Model    string          `json:"model"`
	Messages json.RawMessage `json:"messages"`
}

// TokenUsage mirrors the usage accounting most LLM providers return
// alongside a completion, so callers can report actual cost after the
// fact even though the admission limiter (pkg/limiter) charges a flat 1
// token per request.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CompletionResponse is the minimal shape returned to the caller.
type CompletionResponse struct {
	Content json.RawMessage `json:"content"`
	Usage   TokenUsage      `json:"usage"`
}

// Client is a bare HTTP client for the configured LLM provider endpoint.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Complete issues one completion request. Callers are expected to sit this
// behind the admission middleware — this method performs no rate limiting
// of its own.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llmgateway: provider returned %s", resp.Status)
	}

	var out CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

package decider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPDecider calls an OpenAI-compatible chat completions endpoint and
// returns the first choice's raw message content. It is the boundary
// shim satisfying the Decider contract (spec.md §6); model selection,
// per-agent key management, and provider routing live upstream of this
// client and are not its concern.
type HTTPDecider struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPDecider builds a Decider that posts to url (an OpenAI-compatible
// chat completions endpoint) using apiKey and model.
func NewHTTPDecider(url, apiKey, model string) *HTTPDecider {
	return &HTTPDecider{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: CallTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Decide implements Decider by issuing one chat completion call.
func (h *HTTPDecider) Decide(ctx context.Context, agentID, prompt, systemPrompt string, maxTokens int) (string, error) {
	if h.apiKey == "" {
		return "", fmt.Errorf("httpdecider: no api key configured for agent %s", agentID)
	}

	body, err := json.Marshal(chatRequest{
		Model: h.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("httpdecider: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("httpdecider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpdecider: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("httpdecider: status %d: %s", resp.StatusCode, b)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("httpdecider: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("httpdecider: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

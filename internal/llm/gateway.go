package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noterag/noterag/internal/noteerr"
)

// DefaultGatewayTimeout bounds one chat completion. Answer synthesis
// runs a big model behind the gateway, so this is generous.
const DefaultGatewayTimeout = 60 * time.Second

// Completer produces a chat completion for a single user prompt.
// Implemented by GatewayClient; consumers take the interface so tests
// can stub it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GatewayClient calls an OpenAI-style chat-completions gateway.
type GatewayClient struct {
	client  *http.Client
	baseURL string
	token   string
	model   string
	timeout time.Duration
}

var _ Completer = (*GatewayClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewGatewayClient creates a chat gateway client. An empty baseURL is
// allowed; Complete then fails with a config error, which the answer
// path turns into its excerpt fallback.
func NewGatewayClient(baseURL, token, model string, timeout time.Duration) *GatewayClient {
	if model == "" {
		model = "clawdbot"
	}
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &GatewayClient{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		model:   model,
		timeout: timeout,
	}
}

// Complete sends the prompt as a single user message and returns the
// first choice's content.
func (g *GatewayClient) Complete(ctx context.Context, prompt string) (string, error) {
	if g.baseURL == "" {
		return "", noteerr.Errorf(noteerr.KindConfig, "llm.complete", "answer gateway URL is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqBody, err := json.Marshal(chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", noteerr.E(noteerr.KindTransient, "llm.complete", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", noteerr.Errorf(noteerr.KindTransient, "llm.complete",
			"status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", noteerr.E(noteerr.KindTransient, "llm.complete", err)
	}
	if len(result.Choices) == 0 {
		return "", noteerr.Errorf(noteerr.KindTransient, "llm.complete", "gateway returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

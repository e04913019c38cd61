// Package llm holds the thin HTTP clients for the two model backends:
// a local Ollama instance used for small-model relevance judgments and
// query expansion, and an OpenAI-style chat gateway used for answer
// synthesis.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/noterag/noterag/internal/noteerr"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultJudgeModel is the default small model for relevance
	// judgments. Must be fast; it is called once per candidate.
	DefaultJudgeModel = "qwen2.5:0.5b"

	// DefaultGenerateTimeout bounds a single generate call.
	DefaultGenerateTimeout = 10 * time.Second

	generatePoolSize = 5
)

// GenerateOptions are the sampling options passed through to Ollama.
// Zero values are sent as-is: temperature 0 means greedy decoding.
type GenerateOptions struct {
	Temperature float64
	NumPredict  int
}

// Generator produces a completion for a prompt. Implemented by
// OllamaClient; consumers take the interface so tests can stub it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Available(ctx context.Context) bool
}

// OllamaClient calls Ollama's generate API.
type OllamaClient struct {
	client    *http.Client
	transport *http.Transport
	host      string
	model     string
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ Generator = (*OllamaClient)(nil)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaClient creates a generate client. It does not contact the
// backend; use Available for a health check.
func NewOllamaClient(host, model string, timeout time.Duration) *OllamaClient {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultJudgeModel
	}
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        generatePoolSize,
		MaxIdleConnsPerHost: generatePoolSize,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OllamaClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		host:      strings.TrimRight(host, "/"),
		model:     model,
		timeout:   timeout,
	}
}

// Generate runs a single non-streaming completion and returns the
// trimmed response text.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", noteerr.Errorf(noteerr.KindStore, "llm.generate", "client is closed")
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.NumPredict,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", noteerr.E(noteerr.KindTransient, "llm.generate", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", noteerr.Errorf(noteerr.KindTransient, "llm.generate",
			"status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", noteerr.E(noteerr.KindTransient, "llm.generate", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// Model returns the model identifier.
func (c *OllamaClient) Model() string { return c.model }

// Available checks that Ollama responds and the configured model is
// installed. Model names match on the base name, ignoring the tag.
func (c *OllamaClient) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	want := modelBase(c.model)
	for _, m := range tags.Models {
		if modelBase(m.Name) == want {
			return true
		}
	}
	return false
}

func modelBase(name string) string {
	return strings.ToLower(strings.Split(name, ":")[0])
}

// Close releases idle connections.
func (c *OllamaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

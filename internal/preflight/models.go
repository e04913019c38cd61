package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/noterag/noterag/internal/config"
)

// probeTimeout bounds the /api/tags request.
const probeTimeout = 5 * time.Second

// tagsResponse mirrors the Ollama /api/tags payload.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckOllama probes the backend once and derives three results:
// reachability plus presence of the embedding and judge models. All
// three are non-critical; without Ollama, search still answers from
// the keyword index.
func (c *Checker) CheckOllama(ctx context.Context, cfg *config.Config) []CheckResult {
	installed, err := fetchInstalledModels(ctx, cfg.Embedding.OllamaURL)
	if err != nil {
		return []CheckResult{{
			Name:    "ollama",
			Status:  StatusFail,
			Message: fmt.Sprintf("unreachable at %s", cfg.Embedding.OllamaURL),
			Details: err.Error() + "; semantic search and indexing need Ollama running",
		}}
	}

	results := []CheckResult{{
		Name:    "ollama",
		Status:  StatusPass,
		Message: fmt.Sprintf("reachable at %s (%d models)", cfg.Embedding.OllamaURL, len(installed)),
	}}

	results = append(results,
		c.checkModel("embedding_model", cfg.Embedding.Model, installed,
			"run 'ollama pull "+cfg.Embedding.Model+"'"),
		c.checkModel("judge_model", cfg.Rerank.Model, installed,
			"query-mode reranking degrades to fused order without it"),
	)
	return results
}

// checkModel reports whether a model is installed, comparing base
// names so "nomic-embed-text" matches "nomic-embed-text:latest".
func (c *Checker) checkModel(name, model string, installed map[string]bool, hint string) CheckResult {
	result := CheckResult{Name: name}

	if installed[modelBase(model)] {
		result.Status = StatusPass
		result.Message = model
		return result
	}

	result.Status = StatusWarn
	result.Message = fmt.Sprintf("%s not installed", model)
	result.Details = hint
	return result
}

// CheckGateway reports whether the answer gateway is configured. No
// request is made; configuration presence is the contract.
func (c *Checker) CheckGateway(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "answer_gateway"}

	if cfg.Answer.GatewayURL == "" {
		result.Status = StatusWarn
		result.Message = "not configured ('ask' is disabled)"
		result.Details = "Set answer.gateway_url or the CLAWDBOT_URL / CLAWDBOT_TOKEN environment variables"
		return result
	}

	result.Status = StatusPass
	result.Message = cfg.Answer.GatewayURL
	if cfg.Answer.Token == "" {
		result.Status = StatusWarn
		result.Message = cfg.Answer.GatewayURL + " (no token set)"
	}
	return result
}

// fetchInstalledModels returns the base names of models installed on
// the Ollama instance.
func fetchInstalledModels(ctx context.Context, host string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from /api/tags", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode /api/tags: %w", err)
	}

	installed := make(map[string]bool, len(tags.Models))
	for _, m := range tags.Models {
		installed[modelBase(m.Name)] = true
	}
	return installed, nil
}

// modelBase strips the tag from a model name: "qwen2.5:0.5b" becomes
// "qwen2.5".
func modelBase(name string) string {
	return strings.ToLower(strings.Split(name, ":")[0])
}

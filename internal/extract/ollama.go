package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

const extractPrompt = `Extract the medicines requested in the message below.
Respond with ONLY a JSON array, no prose. Each element has the shape
{"name": string, "dosage": string, "quantity": integer}. The dosage is the
per-dose strength text as written (e.g. "500mg"), or "" when absent. The
quantity defaults to 1. An empty array means no medicines were requested.

Message: %s`

// OllamaExtractor parses messages with a local Ollama model. When the model
// call fails or returns unparsable output it falls back to the grammar-based
// extractor so a down LLM never takes the intake channel with it.
type OllamaExtractor struct {
	baseURL    string
	model      string
	httpClient *http.Client
	fallback   Extractor
	logger     *slog.Logger
}

// NewOllamaExtractor creates an extractor backed by Ollama's generate API.
func NewOllamaExtractor(baseURL, modelName string, fallback Extractor, logger *slog.Logger) *OllamaExtractor {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaExtractor{
		baseURL: baseURL,
		model:   modelName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		fallback: fallback,
		logger:   logger,
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Extract implements Extractor.
func (e *OllamaExtractor) Extract(ctx context.Context, message string) ([]model.RequestedItem, []string, error) {
	items, err := e.generate(ctx, message)
	if err != nil {
		e.logger.Warn("ollama extraction failed, falling back to rules", "error", err)
		items, reasoning, ferr := e.fallback.Extract(ctx, message)
		reasoning = append([]string{"llm extraction unavailable, used grammar fallback"}, reasoning...)
		return items, reasoning, ferr
	}

	reasoning := []string{fmt.Sprintf("llm extracted %d item(s)", len(items))}
	return items, reasoning, nil
}

func (e *OllamaExtractor) generate(ctx context.Context, message string) ([]model.RequestedItem, error) {
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:  e.model,
		Prompt: fmt.Sprintf(extractPrompt, message),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	var items []model.RequestedItem
	if err := json.Unmarshal([]byte(result.Response), &items); err != nil {
		return nil, fmt.Errorf("ollama: parse model output: %w", err)
	}

	// Guard model output: drop malformed entries instead of failing the run.
	valid := items[:0]
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		valid = append(valid, it)
	}
	return valid, nil
}

// Reachable checks if an Ollama server is responding at baseURL. Used by
// provider auto-detection at startup.
func Reachable(baseURL string) bool {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

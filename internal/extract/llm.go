package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// System prompt for model-backed report extraction.
const reportSystemPrompt = `You are a brokerage research extraction system. Given one archived research email, produce a single JSON object describing the report.

RULES:
1. Extract ONLY what the email states - never invent numbers or ratings
2. companyCanonical is the plain company name without legal suffixes or report words
3. reportType is one of: initiation, results_update, target_change, rating_change, general_update
4. summary is at most 3 sentences; keyPoints at most 10 short bullet strings
5. confidence is 0.0-1.0 for how certain the extraction is
6. Return ONLY the JSON object, no additional text

JSON SCHEMA:
{
  "broker": "broker or research house name",
  "companyRaw": "company name as written",
  "companyCanonical": "canonical company name",
  "reportType": "results_update",
  "title": "report title",
  "summary": "short prose summary",
  "keyPoints": ["point one", "point two"],
  "publishedAt": "RFC 3339 timestamp if stated, else empty",
  "confidence": 0.85
}`

// ModelConfig configures the OpenAI-compatible extraction adapter.
type ModelConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ModelAdapter extracts reports via an OpenAI-compatible chat-completions
// API. Every call is bounded by the configured timeout, and any failure
// falls back to the deterministic heuristic adapter so one flaky upstream
// cannot poison a run.
type ModelAdapter struct {
	config   ModelConfig
	client   *http.Client
	fallback Adapter
}

// NewModelAdapter creates a model-backed adapter with a heuristic fallback.
func NewModelAdapter(cfg ModelConfig) *ModelAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ModelAdapter{
		config:   cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		fallback: NewHeuristicAdapter(),
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

// Extract implements Adapter.
func (m *ModelAdapter) Extract(ctx context.Context, archive *store.Archive, userID, runID string) (*RawReport, error) {
	raw, err := m.extractViaModel(ctx, archive)
	if err != nil {
		return m.fallback.Extract(ctx, archive, userID, runID)
	}
	return raw, nil
}

func (m *ModelAdapter) extractViaModel(ctx context.Context, archive *store.Archive) (*RawReport, error) {
	if archive == nil {
		return nil, fmt.Errorf("nil archive")
	}
	if m.config.Endpoint == "" {
		return nil, fmt.Errorf("model endpoint not configured")
	}

	userContent := fmt.Sprintf("Broker: %s\nSubject: %s\nDate: %s\nSnippet: %s\nBody:\n%s",
		archive.Broker, archive.Subject, archive.DateHeader, archive.Snippet, archive.BodyPreview)

	body, err := json.Marshal(chatRequest{
		Model: m.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: reportSystemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extraction model: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned HTTP %d: %s", resp.StatusCode, truncateForError(string(payload)))
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	return parseModelReport(chat.Choices[0].Message.Content)
}

// parseModelReport extracts the JSON object from model output, tolerating
// markdown code fences around it.
func parseModelReport(content string) (*RawReport, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var raw RawReport
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decoding extracted report: %w", err)
	}
	if strings.TrimSpace(raw.Title) == "" && strings.TrimSpace(raw.Summary) == "" {
		return nil, fmt.Errorf("model output missing title and summary")
	}
	return &raw, nil
}

func truncateForError(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

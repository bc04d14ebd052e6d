// Package classify implements the Classifier Gateway (C5): it sends a
// cleaned chunk to an external LLM and turns the response into a
// structured classification record, tolerating malformed JSON and failing
// soft when the LLM is unavailable or unhelpful.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxRetries  = 2
	uncategorized = "Uncategorized"

	instructionPrefix = `You are a document classification engine. Given the text below, return a single JSON object with exactly these fields:
{"entity_type": string, "category_level_1": string, "category_level_2_sub": string, "business_concept_name": string, "business_specific_name": string, "primary_process_type": string, "title": string, "description": string, "extraction_confidence": number between 0 and 1}
Respond with JSON only, no surrounding text.

TEXT:
`

	explainPrefix = `You are a financial and business analyst. The text below was extracted from a chart, table, or other visual element and may read as disconnected numbers and labels. Rewrite it as a clear, self-contained prose paragraph describing what it shows. Respond with the paragraph only, no preamble.

TEXT:
`
)

// Record is the structured output of Classify: a classify(cleaned_text)
// -> structured record contract.
type Record struct {
	EntityType            string  `json:"entity_type"`
	CategoryLevel1         string  `json:"category_level_1"`
	CategoryLevel2Sub      string  `json:"category_level_2_sub"`
	BusinessConceptName    string  `json:"business_concept_name"`
	BusinessSpecificName   string  `json:"business_specific_name"`
	PrimaryProcessType     string  `json:"primary_process_type"`
	Title                  string  `json:"title"`
	Description            string  `json:"description"`
	ExtractionConfidence   float64 `json:"extraction_confidence"`
}

// Gateway talks to a black-box LLM protocol: HTTP POST {model, prompt,
// stream:false, temperature} -> {response: string}, grounded on the
// raw-HTTP shape of llm.Provider's Ollama backend (llm/ollama.go's Embed
// method) rather than its chat-completions Chat method, since this
// protocol is a bare prompt/response pair, not a messages array.
type Gateway struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float64
}

// NewGateway builds a Classifier Gateway. timeout is the configurable LLM
// call timeout (default 180s per the concurrency model).
func NewGateway(baseURL, model string, temperature float64, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Gateway{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Classify sends cleanedText to the LLM and returns a structured record.
// It never returns an error for LLM or parse failures: per C5's contract,
// the orchestrator always receives a record.
func (g *Gateway) Classify(ctx context.Context, cleanedText string) Record {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		raw, err := g.call(ctx, cleanedText)
		if err != nil || strings.TrimSpace(raw) == "" {
			continue
		}
		rec, ok := parseRecord(raw)
		if !ok {
			continue
		}
		if rec.CategoryLevel1 == "" || rec.CategoryLevel1 == uncategorized {
			continue
		}
		return rec
	}
	return fallbackRecord(cleanedText)
}

// Explain asks the LLM to rewrite a visual-derived chunk (chart/table text)
// as prose, for the Visual Content Detector's re-explanation step (C4). It
// reports ok=false on any transport, HTTP, or empty-response failure, in
// which case the caller keeps the original chunk text rather than blocking
// ingestion on a single LLM call.
func (g *Gateway) Explain(ctx context.Context, visualText string) (string, bool) {
	raw, err := g.callWithPrefix(ctx, explainPrefix, visualText)
	if err != nil || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

func (g *Gateway) call(ctx context.Context, cleanedText string) (string, error) {
	return g.callWithPrefix(ctx, instructionPrefix, cleanedText)
}

func (g *Gateway) callWithPrefix(ctx context.Context, prefix, text string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:       g.model,
		Prompt:      prefix + text,
		Stream:      false,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier gateway error %d: %s", resp.StatusCode, string(data))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding classifier gateway envelope: %w", err)
	}
	return out.Response, nil
}

// parseRecord attempts a strict JSON parse of raw, falling back to
// extracting the first balanced {...} substring, per C5's parse-repair
// step.
func parseRecord(raw string) (Record, bool) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err == nil {
		return rec, true
	}

	if sub := extractJSONObject(raw); sub != "" {
		if err := json.Unmarshal([]byte(sub), &rec); err == nil {
			return rec, true
		}
	}
	return Record{}, false
}

// extractJSONObject returns the first top-level balanced {...} substring
// of s, or "" if none is found.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// fallbackRecord is the soft-failure record returned on exhaustion.
func fallbackRecord(cleanedText string) Record {
	desc := cleanedText
	if len(desc) > 255 {
		desc = desc[:255]
	}
	return Record{
		EntityType:           "document",
		CategoryLevel1:       uncategorized,
		CategoryLevel2Sub:    "General Business",
		ExtractionConfidence: 0.4,
		Description:          desc,
	}
}

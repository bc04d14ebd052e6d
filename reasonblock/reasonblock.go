// Package reasonblock builds the Reasoning-Ingestion Block attached to
// every Chunk Record: a small set of deterministic, keyword-driven signals
// computed from cleaned_text and source_type, in the same
// threshold/keyword-matching style as chunker.IsVisual.
package reasonblock

import (
	"encoding/json"
	"strings"
	"time"
)

// Block mirrors the Reasoning-Ingestion Block's JSON shape.
type Block struct {
	SignalType           string `json:"signal_type"`
	BusinessFunction     string `json:"business_function"`
	TimeHorizon          string `json:"time_horizon"`
	Granularity          string `json:"granularity"`
	OriginAuthority      string `json:"origin_authority"`
	PotentiallyRegulated bool   `json:"potentially_regulated"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
	DataLineageID        string `json:"data_lineage_id"`
	ExtractionTimestamp  string `json:"extraction_timestamp"`
	ContentType          string `json:"content_type,omitempty"`
	OriginalTextHash     string `json:"original_text_hash,omitempty"`
}

const fixedExtractionConfidence = 0.90

var primarySourceTypes = map[string]bool{
	"pdf": true, "docx": true, "csv": true, "xls": true, "xlsx": true,
}

var regulatedKeywords = []string{"gdpr", "hipaa", "sox", "regulation"}

// classRule pairs a label with the keywords that select it. Order matters:
// the first matching rule wins, so classify stays deterministic regardless
// of how many rules would otherwise match.
type classRule struct {
	label    string
	keywords []string
}

var signalKeywords = []classRule{
	{"metric", []string{"%", "total", "average", "rate", "count", "revenue", "cost", "growth"}},
	{"instruction", []string{"must", "should", "step", "procedure", "policy", "required to"}},
	{"insight", []string{"because", "therefore", "suggests", "indicates", "trend", "driven by"}},
}

var businessFunctionKeywords = []classRule{
	{"finance", []string{"revenue", "budget", "invoice", "expense", "profit", "margin"}},
	{"ops", []string{"operations", "supply chain", "logistics", "inventory", "warehouse"}},
	{"marketing", []string{"campaign", "brand", "customer acquisition", "marketing", "advertising"}},
	{"legal", []string{"contract", "liability", "compliance", "regulation", "clause"}},
	{"tech", []string{"api", "database", "server", "deployment", "software", "infrastructure"}},
	{"hr", []string{"employee", "hiring", "payroll", "benefits", "onboarding"}},
}

var timeHorizonKeywords = []classRule{
	{"forecast", []string{"forecast", "projected", "expected to", "next quarter", "will increase", "outlook"}},
	{"historical", []string{"last year", "previously", "historically", "in the past", "year over year"}},
	{"current", []string{"currently", "as of today", "this quarter", "present"}},
}

// Build computes a Reasoning-Ingestion Block for cleanedText from
// sourceType, deterministically, with no external calls.
func Build(cleanedText, sourceType string, now time.Time) Block {
	lower := strings.ToLower(cleanedText)

	b := Block{
		SignalType:           classify(lower, signalKeywords, "narrative"),
		BusinessFunction:     classify(lower, businessFunctionKeywords, "general"),
		TimeHorizon:          classify(lower, timeHorizonKeywords, "timeless"),
		Granularity:          granularityFor(cleanedText),
		OriginAuthority:      originAuthorityFor(sourceType),
		PotentiallyRegulated: containsAny(lower, regulatedKeywords),
		ExtractionConfidence: fixedExtractionConfidence,
		ExtractionTimestamp:  now.UTC().Format(time.RFC3339),
	}
	return b
}

// WithLineage sets data_lineage_id to the chunk's semantic_hash, computed
// separately by the orchestrator once it has the cleaned chunk text.
func (b Block) WithLineage(semanticHash string) Block {
	b.DataLineageID = semanticHash
	return b
}

// WithVisualOrigin marks a visual-derived chunk, recording the original
// (pre-rewrite) text's hash.
func (b Block) WithVisualOrigin(originalTextHash string) Block {
	b.ContentType = "visual"
	b.OriginalTextHash = originalTextHash
	return b
}

// JSON serializes the block for storage in chunks.reasoning_ingestion.
func (b Block) JSON() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func classify(lower string, rules []classRule, fallback string) string {
	for _, rule := range rules {
		if containsAny(lower, rule.keywords) {
			return rule.label
		}
	}
	return fallback
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func granularityFor(text string) string {
	switch {
	case len(text) < 300:
		return "executive_summary"
	case len(text) < 1200:
		return "tactical_detail"
	default:
		return "raw_data"
	}
}

func originAuthorityFor(sourceType string) string {
	if primarySourceTypes[strings.ToLower(sourceType)] {
		return "primary_source"
	}
	return "secondary_source"
}

package reasonblock

import (
	"strings"
	"testing"
	"time"
)

func TestBuildClassifiesSignalAndFunction(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := Build("Revenue grew 12% this quarter due to strong demand.", "pdf", now)

	if b.SignalType != "metric" {
		t.Errorf("expected metric, got %q", b.SignalType)
	}
	if b.BusinessFunction != "finance" {
		t.Errorf("expected finance, got %q", b.BusinessFunction)
	}
	if b.OriginAuthority != "primary_source" {
		t.Errorf("expected primary_source for pdf, got %q", b.OriginAuthority)
	}
	if b.ExtractionConfidence != 0.90 {
		t.Errorf("expected fixed confidence 0.90, got %v", b.ExtractionConfidence)
	}
	if b.ExtractionTimestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected timestamp: %q", b.ExtractionTimestamp)
	}
}

func TestBuildOriginAuthoritySecondary(t *testing.T) {
	b := Build("some text", "rss", time.Now())
	if b.OriginAuthority != "secondary_source" {
		t.Errorf("expected secondary_source for rss, got %q", b.OriginAuthority)
	}
}

func TestBuildGranularityThresholds(t *testing.T) {
	short := Build(strings.Repeat("a", 100), "txt", time.Now())
	if short.Granularity != "executive_summary" {
		t.Errorf("expected executive_summary, got %q", short.Granularity)
	}
	mid := Build(strings.Repeat("a", 700), "txt", time.Now())
	if mid.Granularity != "tactical_detail" {
		t.Errorf("expected tactical_detail, got %q", mid.Granularity)
	}
	long := Build(strings.Repeat("a", 2000), "txt", time.Now())
	if long.Granularity != "raw_data" {
		t.Errorf("expected raw_data, got %q", long.Granularity)
	}
}

func TestBuildPotentiallyRegulated(t *testing.T) {
	b := Build("this process must comply with GDPR requirements", "docx", time.Now())
	if !b.PotentiallyRegulated {
		t.Error("expected potentially_regulated true for GDPR mention")
	}
	b2 := Build("nothing sensitive here", "docx", time.Now())
	if b2.PotentiallyRegulated {
		t.Error("expected potentially_regulated false")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	now := time.Now()
	text := "The contract requires compliance with sox regulation and must be reviewed."
	a := Build(text, "pdf", now)
	b := Build(text, "pdf", now)
	if a != b {
		t.Fatalf("expected deterministic output, got %+v vs %+v", a, b)
	}
}

func TestWithLineageAndVisualOrigin(t *testing.T) {
	b := Build("text", "pdf", time.Now()).WithLineage("hash123").WithVisualOrigin("orighash")
	if b.DataLineageID != "hash123" {
		t.Errorf("expected lineage hash123, got %q", b.DataLineageID)
	}
	if b.ContentType != "visual" || b.OriginalTextHash != "orighash" {
		t.Errorf("expected visual content_type/original_text_hash set, got %+v", b)
	}
}

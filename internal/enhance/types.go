package enhance

// HighlightType classifies how a span matched the query.
type HighlightType string

const (
	HighlightExact           HighlightType = "exact"
	HighlightCompoundPartial HighlightType = "compound_partial"
	HighlightFuzzy           HighlightType = "fuzzy"
	HighlightSynonym         HighlightType = "synonym"
)

// Span confidences.
const (
	ConfidenceExact   = 1.0
	ConfidenceSynonym = 0.8
	ConfidenceFuzzy   = 0.6
	// compound_partial confidence is partialBase + partialRange * (matched runes / compound runes)
	partialBase  = 0.5
	partialRange = 0.4
)

// HighlightSpan is a character range in the original, untokenized field text.
type HighlightSpan struct {
	Start         int           `json:"start"`
	End           int           `json:"end"`
	Text          string        `json:"text"`
	HighlightType HighlightType `json:"highlight_type"`
	Confidence    float64       `json:"confidence"`
	MatchedQuery  string        `json:"matched_query"`
}

// EnhancedHit wraps one search engine hit.
type EnhancedHit struct {
	OriginalHit           map[string]any             `json:"original_hit"`
	EnhancedScore         float64                    `json:"enhanced_score"`
	HighlightSpans        map[string][]HighlightSpan `json:"highlight_spans"`
	CompoundMatches       []string                   `json:"compound_matches"`
	OriginalTextPreserved map[string]string          `json:"original_text_preserved"`
	TokenizedText         map[string]string          `json:"tokenized_text"`
	RelevanceFactors      map[string]float64         `json:"relevance_factors"`
	EnhancementError      string                     `json:"enhancement_error,omitempty"`
}

// QueryAnalysis summarizes the query for callers.
type QueryAnalysis struct {
	OriginalQuery    string   `json:"original_query"`
	ProcessedQuery   string   `json:"processed_query"`
	TokenCount       int      `json:"token_count"`
	HasCompoundWords bool     `json:"has_compound_words"`
	IsMixedLanguage  bool     `json:"is_mixed_language"`
	PartialTokens    []string `json:"partial_tokens"`
	CompoundWords    []string `json:"compound_words"`
	SearchVariants   []string `json:"search_variants"`
}

// Metadata describes an enhancement run.
type Metadata struct {
	TotalHits            int      `json:"total_hits"`
	EnhancedHits         int      `json:"enhanced_hits"`
	FailedHits           int      `json:"failed_hits"`
	HighlightFields      []string `json:"highlight_fields"`
	CompoundHighlighting bool     `json:"compound_highlighting"`
	RelevanceBoosting    bool     `json:"relevance_boosting"`
	ProcessingTimeMs     float64  `json:"processing_time_ms"`
}

// Result is the output of Enhance.
type Result struct {
	Hits                []EnhancedHit `json:"hits"`
	QueryAnalysis       QueryAnalysis `json:"query_analysis"`
	EnhancementMetadata Metadata      `json:"enhancement_metadata"`
}

// Options are per-request switches.
type Options struct {
	HighlightFields            []string `json:"highlight_fields"`
	EnableCompoundHighlighting bool     `json:"enable_compound_highlighting"`
	EnableRelevanceBoosting    bool     `json:"enable_relevance_boosting"`
}

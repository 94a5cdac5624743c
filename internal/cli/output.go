// Package cli implements the kham command line: the server and offline tokenization,
// query and dictionary commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kham/internal/query"
	"github.com/hyperjump/kham/internal/search"
	"github.com/hyperjump/kham/internal/segment"
	"github.com/hyperjump/kham/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteTokenization writes a segmentation result. Text output prints the tokens joined
// by " | " followed by one line per token with its offset.
func WriteTokenization(w io.Writer, res *segment.TokenizationResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Text:   %s\n", utils.Truncate(res.OriginalText, 80))
	fmt.Fprintf(w, "Engine: %s (%.3fms)\n", res.Engine, res.ProcessingTimeMs)
	fmt.Fprintf(w, "Tokens: %d\n\n", len(res.Tokens))
	fmt.Fprintln(w, strings.Join(res.Tokens, " | "))
	fmt.Fprintln(w)
	for i, tok := range res.Tokens {
		line := fmt.Sprintf("%4d  %q", res.WordBoundaries[i], tok)
		if i < len(res.ConfidenceScores) {
			line += fmt.Sprintf("  %.2f", res.ConfidenceScores[i])
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// WriteQuery writes a processed query.
func WriteQuery(w io.Writer, res *query.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Query:     %s\n", res.OriginalQuery)
	fmt.Fprintf(w, "Processed: %s\n\n", res.ProcessedQuery)
	if len(res.QueryTokens) > 0 {
		fmt.Fprintln(w, "--- Tokens ---")
		for _, t := range res.QueryTokens {
			fmt.Fprintf(w, "%-20s %-16s boost=%.2f", t.Original, t.QueryType, t.BoostScore)
			if t.IsPartial {
				fmt.Fprint(w, " partial")
			}
			if len(t.CompoundParts) > 0 {
				fmt.Fprintf(w, " parts=%s", strings.Join(t.CompoundParts, "+"))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "--- Search variants ---")
	for i, v := range res.SearchVariants {
		fmt.Fprintf(w, "%d. %s\n", i+1, v)
	}
	if len(res.SuggestedCompletions) > 0 {
		fmt.Fprintln(w, "\n--- Suggestions ---")
		for _, s := range res.SuggestedCompletions {
			fmt.Fprintln(w, s)
		}
	}
	return nil
}

// WriteDictionary writes dictionary statistics and the custom vocabulary.
func WriteDictionary(w io.Writer, info search.DictionaryInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	fmt.Fprintf(w, "Version:   %d\n", info.Version)
	fmt.Fprintf(w, "Words:     %d (%d base, %d custom)\n", info.WordCount, info.BaseCount, info.CustomCount)
	fmt.Fprintf(w, "Compounds: %d\n", info.CompoundCount)
	fmt.Fprintf(w, "Longest:   %d characters\n", info.MaxWordLength)
	if len(info.CustomWords) > 0 {
		fmt.Fprintln(w, "\n--- Custom words ---")
		for _, word := range info.CustomWords {
			fmt.Fprintln(w, word)
		}
	}
	return nil
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kham/internal/segment"
)

type tokenizeOptions struct {
	compound   bool
	confidence bool
	json       bool
}

func newTokenizeCommand(root *rootOptions) *cobra.Command {
	opts := &tokenizeOptions{}
	cmd := &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Segment Thai text into words",
		Long: `Segment text with the configured engine and dictionaries.

Arguments are joined with spaces. With no arguments the text is read from stdin.

Examples:
  kham tokenize สาหร่ายวากาเมะ
  kham tokenize --compound การใช้งาน
  echo "ภาษาไทย" | kham tokenize --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := root.format()
			if err != nil {
				return err
			}
			if opts.json {
				format = OutputJSON
			}
			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			core, err := newCore(cfg, logger, nil)
			if err != nil {
				return err
			}
			var res *segment.TokenizationResult
			if opts.compound {
				res, err = core.Segmenter.SegmentCompoundWords(text)
			} else {
				res, err = core.Segmenter.SegmentText(text)
			}
			if err != nil {
				return err
			}
			if !opts.confidence {
				res.ConfidenceScores = nil
			}
			return WriteTokenization(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().BoolVar(&opts.compound, "compound", false, "split dictionary compounds into their parts")
	cmd.Flags().BoolVar(&opts.confidence, "confidence", false, "include per-token confidence scores")
	cmd.Flags().BoolVar(&opts.json, "json", false, "shorthand for --output json")
	return cmd
}

// inputText joins args, or reads r when there are none.
func inputText(r io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

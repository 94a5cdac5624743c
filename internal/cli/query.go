package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kham/internal/query"
)

type queryOptions struct {
	compound       bool
	noPartial      bool
	noExpansion    bool
	maxSuggestions int
	json           bool
}

func newQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <query...>",
		Short: "Show how a search query is classified and expanded",
		Long: `Process a query the way the search API does and print its tokens, search
variants and completion suggestions.

Multi-word queries work with or without shell quoting.

Examples:
  kham query วากาเมะ
  kham query --compound สาหร่าย
  kham query --json API การใช้`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := root.format()
			if err != nil {
				return err
			}
			if opts.json {
				format = OutputJSON
			}
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			core, err := newCore(cfg, logger, nil)
			if err != nil {
				return err
			}
			mode := query.ModeGeneral
			if opts.compound {
				mode = query.ModeCompound
			}
			qopts := query.DefaultOptions()
			qopts.EnablePartialMatching = !opts.noPartial
			qopts.EnableQueryExpansion = !opts.noExpansion
			qopts.MaxSuggestions = opts.maxSuggestions
			res, err := core.Queries.Process(buildQuery(args), qopts, mode)
			if err != nil {
				return err
			}
			return WriteQuery(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().BoolVar(&opts.compound, "compound", false, "use partial-compound processing")
	cmd.Flags().BoolVar(&opts.noPartial, "no-partial", false, "disable partial compound matching")
	cmd.Flags().BoolVar(&opts.noExpansion, "no-expansion", false, "disable query expansion")
	cmd.Flags().IntVar(&opts.maxSuggestions, "max-suggestions", 0, "maximum completion suggestions (0 = configured default)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "shorthand for --output json")
	return cmd
}

// buildQuery joins all positional args with spaces so multi-word queries work the same
// with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/search"
)

var errNoCustomDictionary = errors.New("no custom dictionary configured (tokenizer.custom_dictionary_path)")

func newDictCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Inspect and edit the custom dictionary",
		Long: `Inspect and edit the custom dictionary file.

Changes are written to tokenizer.custom_dictionary_path. A server with
tokenizer.watch_dictionary enabled picks them up without a restart.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show dictionary statistics and custom words",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				format, err := root.format()
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
				return WriteDictionary(cmd.OutOrStdout(), search.NewDictionaryInfo(core.Dictionary.Current()), format)
			},
		},
		newDictEditCommand(root, "add", "Add words to the custom dictionary", (*dictionary.Store).Add),
		newDictEditCommand(root, "remove", "Remove words from the custom dictionary", (*dictionary.Store).Remove),
	)
	return cmd
}

func newDictEditCommand(root *rootOptions, use, short string, edit func(*dictionary.Store, []string) (*dictionary.Snapshot, int)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <word...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			path := cfg.Tokenizer.CustomDictionaryPath
			if path == "" {
				return errNoCustomDictionary
			}
			core, err := newCore(cfg, logger, nil)
			if err != nil {
				return err
			}
			snap, n := edit(core.Dictionary, args)
			if n > 0 {
				if err := dictionary.SaveCustom(path, snap.CustomWords()); err != nil {
					return err
				}
			}
			cmd.Printf("%d word(s) changed, %d custom words in %s\n", n, snap.Stats().CustomCount, path)
			return nil
		},
	}
}

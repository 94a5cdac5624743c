package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/pkg/utils"
)

// Version information, set via ldflags during build.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
	debug      bool
	output     string
}

// load reads the config named by --config and applies --debug.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, _, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.debug {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (o *rootOptions) format() (OutputFormat, error) {
	return ParseOutputFormat(o.output)
}

// NewRootCommand builds the kham command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "kham",
		Short: "Thai compound-aware tokenization for MeiliSearch",
		Long: `kham segments Thai text into words, prepares documents for indexing and
expands search queries so that compound words and their parts match each other.

Run "kham serve" to start the HTTP API, or use the offline commands to try the
tokenizer against the configured dictionaries.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", DefaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", string(OutputText), "output format: text or json")

	root.AddCommand(
		newServeCommand(opts),
		newTokenizeCommand(opts),
		newQueryCommand(opts),
		newDictCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the kham command line.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("kham version %s (commit %s)\n", Version, GitCommit)
		},
	}
}

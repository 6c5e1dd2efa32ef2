package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/testpilot/pkg/config"
	"github.com/entrhq/testpilot/pkg/logging"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "testpilot",
		Short: "Turn plain-language requests into browser tests that run and repair themselves",
		Long: `testpilot indexes the pages you point it at, writes Playwright tests for
what you ask, runs them with pytest and rewrites failing tests until they
pass or the retry budget is spent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(
		newChatCmd(opts),
		newRunCmd(opts),
		newServeCmd(opts),
		newSessionsCmd(),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and applies its logging section.
func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if cfg.Logging.Directory != "" {
		logging.SetDirectory(cfg.Logging.Directory)
	}
	logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	o.cfg = cfg
	return nil
}

// skipConfig replaces the root pre-run for commands that never read the
// configuration.
func skipConfig(_ *cobra.Command, _ []string) error {
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the testpilot version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: skipConfig,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "testpilot v%s\n", version)
		},
	}
}

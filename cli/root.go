// Package cli defines the delver commands. The root command starts the
// interactive TUI; subcommands cover one-shot runs, the HTTP API and the
// Slack bot.
package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mempirate/delver/config"
	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/store"
	"github.com/mempirate/delver/tui"
)

// Version is overridden at build time.
var Version = "dev"

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOpts struct {
	configPath string
	logLevel   string
}

// load merges the config sources and applies the global log level.
func (o *rootOpts) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := log.SetGlobalLevel(cfg.LogLevel); err != nil {
		return cfg, errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
	}

	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:          "delver",
		Short:        "Deep research agent for the terminal",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateResearch(); err != nil {
				return err
			}

			runner, cleanup, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := store.NewFileStore(cfg.Report.Dir)
			if err != nil {
				return err
			}

			return tui.Run(tui.Deps{Runner: runner, Store: st})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	cmd.AddCommand(researchCmd(opts), serveCmd(opts), slackCmd(opts), versionCmd())

	return cmd
}

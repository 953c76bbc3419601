package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mempirate/delver/slack"
)

func slackCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "slack",
		Short: "Run the Slack research bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateResearch(); err != nil {
				return err
			}
			if err := cfg.ValidateSlack(); err != nil {
				return err
			}

			runner, cleanup, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bot := slack.NewBot(cfg.Slack.AppToken, cfg.Slack.BotToken, runner)
			return bot.Start(ctx)
		},
	}
}

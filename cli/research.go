package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/report"
)

// Report output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

func researchCmd(opts *rootOpts) *cobra.Command {
	var output string
	var format string
	var quiet bool
	var noCache bool
	var maxQueries int
	var maxResults int

	c := &cobra.Command{
		Use:   "research <topic>...",
		Short: "Research a topic and write the report to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			if maxQueries > 0 {
				cfg.Plan.MaxQueries = maxQueries
			}
			if maxResults > 0 {
				cfg.Search.MaxResults = maxResults
			}
			if noCache {
				cfg.Cache.Path = ""
			}

			if err := cfg.ValidateResearch(); err != nil {
				return err
			}

			runner, cleanup, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			topic := strings.Join(args, " ")
			logger := log.NewLogger("research")

			res, err := runner(cmd.Context(), topic, progressSink(logger))
			if err != nil {
				return err
			}

			rendered, err := renderReport(res.Report, format)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = defaultOutput(format)
			}

			if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
				return errors.Wrap(err, "failed to write report")
			}
			logger.Info().Str("path", path).Msg("Report written")

			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), rendered)
			}

			return nil
		},
	}

	c.Flags().StringVarP(&output, "output", "o", "", "Output path (default final_report.md)")
	c.Flags().StringVar(&format, "format", FormatMarkdown, "Report format: markdown|html")
	c.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the report to stdout")
	c.Flags().BoolVar(&noCache, "no-cache", false, "Skip the scraped-page cache")
	c.Flags().IntVar(&maxQueries, "max-queries", 0, "Override how many queries the planner may produce")
	c.Flags().IntVar(&maxResults, "max-results", 0, "Override how many search hits are scraped per query")

	return c
}

func renderReport(rep *report.Report, format string) (string, error) {
	switch format {
	case FormatMarkdown, "":
		return rep.Markdown()
	case FormatHTML:
		return rep.HTML()
	default:
		return "", errors.Errorf("unsupported format %q (expected markdown|html)", format)
	}
}

func defaultOutput(format string) string {
	if format == FormatHTML {
		return "final_report.html"
	}
	return "final_report.md"
}

// progressSink logs run progress as it happens.
func progressSink(logger zerolog.Logger) agent.Sink {
	return func(ev agent.Event) {
		switch ev.Kind {
		case agent.KindPlanCreated:
			logger.Info().Strs("queries", ev.Queries).Msg("Plan created")
		case agent.KindQueryStarted:
			logger.Info().Int("index", ev.Index).Str("query", ev.Query).Msg("Researching query")
		case agent.KindSourceScraped:
			logger.Info().Str("url", ev.URL).Int("chars", ev.Chars).Msg("Scraped source")
		case agent.KindSourceSkipped:
			logger.Warn().Str("url", ev.URL).Str("reason", ev.Reason).Msg("Skipped source")
		case agent.KindQuerySummarized:
			logger.Info().Str("query", ev.Query).Bool("null", ev.Null).Msg("Query summarized")
		case agent.KindWriteStarted:
			logger.Info().Msg("Writing final report")
		case agent.KindReportReady:
			logger.Info().Msg("Report ready")
		}
	}
}

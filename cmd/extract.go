package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pricewatch/scraper"
)

func newExtractCmd() *cobra.Command {
	var (
		url  string
		file string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Show which strategy finds which price on one page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(url) == "" && strings.TrimSpace(file) == "" {
				return errors.New("missing required flag: --url or --file")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var content string
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				content = string(raw)
			} else {
				a := &app{cfg: cfg, logger: logger}
				fetcher, err := a.buildFetcher()
				if err != nil {
					return err
				}
				defer a.Close()

				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Check.FetchTimeout+cfg.Check.FetchTimeout/2)
				defer cancel()
				content, err = fetcher.Fetch(ctx, url)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			extraction, ok := newExtractor(cfg, logger).Extract(content)
			if !ok {
				fmt.Fprintln(out, "no price found")
				if blocked, reason := scraper.NewBotDetector().Inspect(content); blocked {
					fmt.Fprintln(out, "page looks like a bot check:", reason)
				}
				return nil
			}

			fmt.Fprintf(out, "price=%s strategy=%s matched=%q\n",
				extraction.Price.StringFixed(2), extraction.Strategy, extraction.Candidate.MatchedText)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Product page URL")
	cmd.Flags().StringVar(&file, "file", "", "Saved HTML file")
	return cmd
}

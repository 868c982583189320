package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check every product once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger, dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d alerts_sent=%d prices_found=%d misses=%d notify_failures=%d\n",
				summary.Checked, summary.AlertsSent, summary.PricesFound, summary.Misses, summary.NotifyFailures)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log alerts instead of sending them")
	return cmd
}

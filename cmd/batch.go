package main

import (
	"context"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricetrack/internal/model"
	"github.com/sells-group/pricetrack/internal/supplier"
	"github.com/sells-group/pricetrack/internal/telemetry"
)

var (
	batchConcurrency int
	batchOnly        []string
	batchJSON        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Update prices for every configured supplier",
	Long:  "Runs one batch: extract each supplier's price, match it to the catalog, update the current price, and append history. Supplier failures are reported, not returned as errors.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrency = batchConcurrency
		}

		shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		_, err = runBatch(ctx, env, cmd.OutOrStdout(), batchJSON, batchOnly)
		return err
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max suppliers in flight (default from config)")
	batchCmd.Flags().StringSliceVar(&batchOnly, "only", nil, "run only these supplier labels")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(batchCmd)
}

// runBatch runs the selected suppliers, prints the summary, and sends any
// alerts. The error is non-nil only when nothing could be run.
func runBatch(ctx context.Context, env *pipelineEnv, out io.Writer, asJSON bool, only []string) (*model.BatchSummary, error) {
	suppliers := supplier.Only(env.Suppliers, only...)
	if len(suppliers) == 0 {
		return nil, eris.Errorf("batch: no suppliers match %s (have %s)",
			strings.Join(only, ","), strings.Join(supplier.Labels(env.Suppliers), ","))
	}

	summary := env.Runner.RunBatch(ctx, suppliers)

	if asJSON {
		if err := writeSummaryJSON(out, summary); err != nil {
			return summary, eris.Wrap(err, "batch: write json")
		}
	} else {
		renderSummary(out, summary)
	}

	alerts := env.Alerter.Evaluate(summary)
	if len(alerts) > 0 {
		sent := env.Alerter.SendAlerts(ctx, alerts)
		zap.L().Info("batch: alerts evaluated",
			zap.Int("alerts_triggered", len(alerts)),
			zap.Int("alerts_sent", sent),
		)
	}

	return summary, nil
}

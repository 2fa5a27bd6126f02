package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/dataset"
	"github.com/sells-group/triangulate/internal/model"
	"github.com/sells-group/triangulate/internal/monitoring"
	"github.com/sells-group/triangulate/internal/pipeline"
)

var (
	runInput   string
	runOutput  string
	runReport  string
	runOffline bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich a dataset of organisation rows",
	Long:  "Reads a CSV or XLSX dataset, runs every row through the enrichment pipeline and writes the enriched dataset and the run report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rows, err := dataset.Read(runInput)
		if err != nil {
			return eris.Wrap(err, "read dataset")
		}

		env, err := initRunEnv(ctx, cfg, runOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		report, runErr := env.Pipeline.Run(ctx, rows)
		if report == nil {
			return eris.Wrap(runErr, "pipeline run")
		}

		if runOutput != "" {
			if err := dataset.Write(runOutput, mergeEnriched(rows, report)); err != nil {
				return eris.Wrap(err, "write enriched dataset")
			}
		}
		if runReport != "" {
			if err := writeReport(runReport, report); err != nil {
				return err
			}
		}

		notifyHealth(ctx, report)

		fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
		if runErr != nil {
			return eris.Wrap(runErr, "pipeline run")
		}
		return nil
	},
}

// mergeEnriched returns rows in input order with every processed row
// replaced by its enriched version. Excluded rows are written unchanged.
func mergeEnriched(rows []model.Organisation, report *pipeline.Report) []model.Organisation {
	byID := make(map[string]model.Organisation, len(report.Rows))
	for _, r := range report.Rows {
		byID[r.RowID] = r.Organisation
	}
	out := make([]model.Organisation, len(rows))
	for i, r := range rows {
		if enriched, ok := byID[r.ID]; ok {
			out[i] = enriched
			continue
		}
		out[i] = r
	}
	return out
}

func writeReport(path string, report *pipeline.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create report %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return eris.Wrapf(err, "write report %s", path)
	}
	return nil
}

func notifyHealth(ctx context.Context, report *pipeline.Report) {
	alerts, sent := monitoring.NewAlerter(cfg.Monitoring).Notify(context.WithoutCancel(ctx), report.Health())
	for _, a := range alerts {
		zap.L().Warn("run health alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	if len(alerts) > 0 {
		zap.L().Info("run health alerts sent", zap.Int("alerts", len(alerts)), zap.Int("sent", sent))
	}
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "dataset to enrich (.csv or .xlsx, required)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "where to write the enriched dataset (.csv or .xlsx)")
	runCmd.Flags().StringVar(&runReport, "report", "", "where to write the run report as JSON")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "skip connectors that call remote services")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

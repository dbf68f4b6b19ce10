package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/attritioncast/internal/assemble"
	"github.com/rewired-gh/attritioncast/internal/ingest"
	"github.com/rewired-gh/attritioncast/internal/logger"
	"github.com/rewired-gh/attritioncast/internal/reconcile"
)

func (a *app) forecastCmd() *cobra.Command {
	var (
		input   string
		output  string
		mode    string
		horizon int
		fitted  bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast attrition from a CSV or XLSX file",
		Long: `Reads raw attrition records, forecasts every category of the chosen mode,
and writes long-format rows (ds, unique_id, y, yhat, yhat_lower, yhat_upper, type).

Modes: "Overall", "By Gender", "By Marital Status", "By Department",
"By Department (Top-Down)", or the aliases overall, gender, marital,
department, department-topdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := reconcile.ParseMode(mode)
			if err != nil {
				return err
			}
			if format != "json" && format != "csv" {
				return fmt.Errorf("unknown format %q, want json or csv", format)
			}
			if horizon == 0 {
				horizon = a.cfg.Forecast.DefaultHorizon
			}

			policy, err := ingest.ParseBadDatePolicy(a.cfg.Ingest.OnBadDate)
			if err != nil {
				return err
			}
			ds, err := ingest.Load(input, ingest.Options{OnBadDate: policy})
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", input, err)
			}
			logger.Info("Loaded %d observations from %s (%d dropped)", len(ds.Observations), input, ds.Dropped)

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(store)

			p, err := a.newPipeline(store)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out, err := p.Run(ctx, reconcile.Request{Mode: m, Horizon: horizon, Fitted: fitted}, ds.Observations)
			if err != nil {
				return err
			}
			for _, w := range out.Warnings {
				logger.Warn("%s", w)
			}

			dst := a.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				dst = f
			}
			return writeOutput(dst, format, out.Rows, out)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input file (.csv or .xlsx)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(reconcile.ModeOverall), "Forecast mode")
	cmd.Flags().IntVarP(&horizon, "horizon", "H", 0, "Months to forecast (1-24, default from config)")
	cmd.Flags().BoolVar(&fitted, "fitted", false, "Include in-sample estimates on historical rows")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or csv")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func writeOutput(w io.Writer, format string, rows []assemble.Row, full any) error {
	if format == "csv" {
		return assemble.WriteCSV(w, rows)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(full)
}

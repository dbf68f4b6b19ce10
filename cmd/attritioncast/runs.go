package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/attritioncast/internal/assemble"
	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/storage"
)

var errStorageDisabled = errors.New("storage is disabled; set storage.enabled to inspect archived runs")

func (a *app) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived forecast runs",
	}
	cmd.AddCommand(a.runsListCmd())
	cmd.AddCommand(a.runsShowCmd())
	return cmd
}

func (a *app) withStore(fn func(*storage.Storage) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store == nil {
		return errStorageDisabled
	}
	defer closeStore(store)
	return fn(store)
}

func (a *app) runsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Storage) error {
				runs, err := store.ListRuns(limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tMODE\tMODEL\tHORIZON\tCATEGORIES\tWARNINGS")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
						r.ID, r.CreatedAt.Format(time.RFC3339), r.Mode, r.Model, r.Horizon,
						strings.Join(r.Categories, ","), len(r.Warnings))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	return cmd
}

func (a *app) runsShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the rows of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *storage.Storage) error {
				run, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				payload := json.RawMessage(run.Payload)
				if len(payload) == 0 {
					payload = json.RawMessage("[]")
				}
				if format == "csv" {
					var rows []assemble.Row
					if err := json.Unmarshal(payload, &rows); err != nil {
						return fmt.Errorf("corrupt payload for run %s: %w", run.ID, err)
					}
					return writeOutput(a.out, "csv", rows, nil)
				}
				return writeOutput(a.out, "json", nil, struct {
					*models.Run
					Rows json.RawMessage `json:"rows"`
				}{Run: run, Rows: payload})
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or csv")
	return cmd
}

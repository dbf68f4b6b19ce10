package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/attritioncast/internal/forecast"
)

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered forecasting models",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range forecast.Names() {
				marker := " "
				if name == a.cfg.Forecast.Model {
					marker = "*"
				}
				fmt.Fprintf(a.out, "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

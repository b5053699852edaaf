package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetroster/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := offlineConfig()
		if err != nil {
			return err
		}
		files, err := dashboard.Render(dashboardOut, dashboard.Tables{
			Database:     cfg.Greptime.Database,
			HistoryTable: cfg.Greptime.HistoryTable,
			LossTable:    cfg.Greptime.LossTable,
		})
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}

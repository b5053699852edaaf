package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetroster/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file against the schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (fleet_id=%d, main_character_id=%d, refresh_interval=%s)\n",
			configPath, cfg.FleetID, cfg.MainCharacterID, cfg.RefreshInterval)
		return nil
	},
}

package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	respondnats "github.com/secureops/workbench/respond/internal/nats"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run detection rules over recent events",
	Long: `Run every rule over the most recent events and print how many alerts were
created. With --remote the run is requested from the serving replicas over
NATS instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		remote, _ := cmd.Flags().GetBool("remote")

		if remote {
			cfg.Database.MigrateOnBoot = false
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if remote {
			if a.broker == nil {
				return errors.New("--remote requires nats.enabled")
			}
			req := &respondnats.DetectionRequest{RequestID: uuid.NewString(), Limit: limit}
			if err := respondnats.NewPublisher(a.broker).RequestDetections(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requested detection run %s\n", req.RequestID)
			return nil
		}

		resp, err := a.svc.RunDetections(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "alerts_created=%d\n", resp.AlertsCreated)
		return nil
	},
}

func init() {
	detectCmd.Flags().Int("limit", 0, "number of recent events to scan (default detection.window_limit)")
	detectCmd.Flags().Bool("remote", false, "publish a detection request instead of running locally")
	rootCmd.AddCommand(detectCmd)
}

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/secureops/workbench/respond/internal/models"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import telemetry into the event store",
}

var importJSONLCmd = &cobra.Command{
	Use:   "jsonl FILE",
	Short: "Import a JSON Lines file (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		host, _ := cmd.Flags().GetString("host")
		user, _ := cmd.Flags().GetString("user")

		data, filename, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.svc.ImportJSONL(cmd.Context(), &models.ImportRequest{
			Filename: filename,
			Source:   source,
			Host:     host,
			User:     user,
		}, data)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var importCloudTrailCmd = &cobra.Command{
	Use:   "cloudtrail",
	Short: "Pull recent AWS CloudTrail management events",
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, _ := cmd.Flags().GetInt("minutes")
		region, _ := cmd.Flags().GetString("region")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.svc.SyncCloudTrail(cmd.Context(), &models.CloudTrailSyncRequest{Minutes: minutes, Region: region})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

// readInput reads path, or stdin for "-". The returned filename is empty for
// stdin so the default applies.
func readInput(stdin io.Reader, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return data, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, filepath.Base(path), nil
}

func init() {
	importJSONLCmd.Flags().String("source", "", "source tag for every event (required)")
	importJSONLCmd.Flags().String("host", "", "host tag")
	importJSONLCmd.Flags().String("user", "", "user tag")
	_ = importJSONLCmd.MarkFlagRequired("source")

	importCloudTrailCmd.Flags().Int("minutes", 15, "minutes of history to pull (1-1440)")
	importCloudTrailCmd.Flags().String("region", "", "AWS region (default aws.region)")

	importCmd.AddCommand(importJSONLCmd, importCloudTrailCmd)
	rootCmd.AddCommand(importCmd)
}

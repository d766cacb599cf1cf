package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secureops/workbench/respond/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report INCIDENT_ID",
	Short: "Export an incident report",
	Long: `Build the incident packet, record it as evidence and render the report.
The file is written to incident-report.<ext> unless --out names another
path; --out - writes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.svc.ExportReport(cmd.Context(), args[0], format)
		if err != nil {
			return err
		}

		if out == "-" {
			_, err := cmd.OutOrStdout().Write(doc.Body)
			return err
		}
		if out == "" {
			out = doc.Filename
		}
		if err := os.WriteFile(out, doc.Body, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(doc.Body))
		return nil
	},
}

func init() {
	reportCmd.Flags().String("format", "md", "report format: md or pdf")
	reportCmd.Flags().StringP("out", "o", "", "output path (default incident-report.<ext>, - for stdout)")
	rootCmd.AddCommand(reportCmd)
}

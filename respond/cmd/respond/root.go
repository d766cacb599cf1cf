package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "respond",
	Short: "Detection and incident response workbench",
	Long: `respond ingests security telemetry, runs substring detection rules over it,
groups alerts into incidents and produces evidence-backed incident reports.

Run "respond serve" for the HTTP API, or use the other commands to operate
on the same store from the terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("memory") {
			c.Database.Driver = config.DriverMemory
		}
		cfg = c
		logger = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
			With(logging.Service("respond"))
		logging.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/workbench/respond/config.yaml)")
	rootCmd.PersistentFlags().Bool("memory", false, "use the in-memory store instead of PostgreSQL")
}

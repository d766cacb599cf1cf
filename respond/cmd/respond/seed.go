package main

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/secureops/workbench/respond/internal/ingest"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/payload"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import synthetic Linux auth events for testing",
	Long: `Generate realistic-looking sshd/sudo events and import them as one batch.
Roughly one in ten events is a root login so the built-in rules have
something to match.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		seed, _ := cmd.Flags().GetInt64("seed")
		if count <= 0 {
			return fmt.Errorf("--count must be positive")
		}

		data, err := ingest.EncodeJSONL(generateAuthEvents(gofakeit.New(seed), count, time.Now().UTC()))
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.svc.ImportJSONL(cmd.Context(), &models.ImportRequest{
			Filename: "seed.jsonl",
			Source:   "linux",
		}, data)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var seedActions = []string{"Accepted password", "Failed password", "session opened", "sudo: COMMAND=/bin/bash"}

// generateAuthEvents produces count events ending at end, one second apart.
func generateAuthEvents(f *gofakeit.Faker, count int, end time.Time) []payload.Value {
	hosts := make([]string, 5)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("%s-%02d", f.RandomString([]string{"web", "db", "bastion"}), i+1)
	}

	events := make([]payload.Value, 0, count)
	for i := 0; i < count; i++ {
		user := f.Username()
		if f.Number(1, 10) == 1 {
			user = "root"
		}
		action := f.RandomString(seedActions)
		ip := f.IPv4Address()
		host := f.RandomString(hosts)
		ts := end.Add(-time.Duration(count-1-i) * time.Second)

		events = append(events, payload.Mapping(
			payload.Field("timestamp", payload.String(ts.Format(time.RFC3339))),
			payload.Field("host", payload.String(host)),
			payload.Field("program", payload.String("sshd")),
			payload.Field("user", payload.String(user)),
			payload.Field("src_ip", payload.String(ip)),
			payload.Field("port", payload.Int(int64(f.Number(1024, 65535)))),
			payload.Field("message", payload.String(fmt.Sprintf("%s for %s from %s", action, user, ip))),
		))
	}
	return events
}

func init() {
	seedCmd.Flags().Int("count", 200, "number of events to generate")
	seedCmd.Flags().Int64("seed", time.Now().UnixNano(), "random seed")
	rootCmd.AddCommand(seedCmd)
}

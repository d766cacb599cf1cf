package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/secureops/workbench/respond/internal/rulepack"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Detection rules management",
}

var rulesLoadCmd = &cobra.Command{
	Use:   "load [PATH...]",
	Short: "Create rules from YAML or JSON rule packs",
	Long: `Create rules from rule pack files or directories of them. --builtin adds the
packs shipped with respond. Every rule is validated before any is created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		builtin, _ := cmd.Flags().GetBool("builtin")
		if len(args) == 0 && !builtin {
			return errors.New("name at least one rule pack or pass --builtin")
		}

		var packs []*rulepack.Pack
		if builtin {
			b, err := rulepack.Builtin()
			if err != nil {
				return err
			}
			packs = append(packs, b...)
		}
		for _, path := range args {
			p, err := rulepack.Load(path)
			if err != nil {
				return err
			}
			packs = append(packs, p...)
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.svc.LoadRules(cmd.Context(), rulepack.Rules(packs))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d rules from %d packs\n", len(created), len(packs))
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List detection rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		rules, err := a.svc.ListRules(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), rules)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSEVERITY\tSOURCE\tFIELD\tCONTAINS")
		for _, r := range rules {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Severity, r.MatchSource, r.MatchField, r.MatchContains)
		}
		return tw.Flush()
	},
}

func init() {
	rulesLoadCmd.Flags().Bool("builtin", false, "include the built-in rule packs")
	rulesListCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rulesCmd.AddCommand(rulesLoadCmd, rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/pkg/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and delete past runs",
}

// --- list subcommand ---

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past runs, newest first",
	RunE:  runRunsList,
}

func runRunsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-10s  %-7s  %7s  %10s  %12s  %s\n",
		"Date", "Status", "Fetched", "Deep reads", "Also notable", "Finished")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 75))
	for _, r := range runs {
		finished := ""
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(os.Stdout, "%-10s  %-7s  %7d  %10d  %12d  %s\n",
			r.RunDate, r.Status, r.TotalCount, r.DeepReads, r.AlsoNotable, finished)
	}
	return nil
}

// --- show subcommand ---

var runsShowCmd = &cobra.Command{
	Use:   "show <date>",
	Short: "Print the digest of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(rec)
	}
	if rec.Status == types.RunError {
		fmt.Printf("Run %s failed: %s\n", rec.RunDate, rec.Error)
	} else if rec.Digest != "" {
		fmt.Println(rec.Digest)
	}
	if logs, _ := cmd.Flags().GetBool("logs"); logs {
		fmt.Println()
		for _, l := range rec.Logs {
			fmt.Println(l)
		}
	}
	return nil
}

// --- delete subcommand ---

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <date>",
	Short: "Delete the run record of a date",
	Long: `Delete removes the run record of a date so the pipeline may run again.
With --purge-entries the archive entries first seen on that date are
removed too, and with --reports the date's report files are deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunsDelete,
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	purge, _ := cmd.Flags().GetBool("purge-entries")
	reports, _ := cmd.Flags().GetBool("reports")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.DeleteRun(context.Background(), args[0], purge)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d run(s) and %d entr(ies) for %s\n", res.Runs, res.Entries, args[0])

	if reports {
		ids, err := report.NewFiles(cfg.Archive.ReportsDir).DeleteDate(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d report file(s)\n", len(ids))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runsListCmd.Flags().Bool("json", false, "output as JSON")
	runsShowCmd.Flags().Bool("json", false, "output the full run record as JSON")
	runsShowCmd.Flags().Bool("logs", false, "print the run log after the digest")
	runsDeleteCmd.Flags().Bool("purge-entries", false, "also remove archive entries first seen on the date")
	runsDeleteCmd.Flags().Bool("reports", false, "also delete the date's report files")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-triage/internal/pipeline"
	"github.com/pdiddy/paper-triage/internal/rank"
	"github.com/pdiddy/paper-triage/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the digest",
	Long: `Run fetches, scores and ranks today's papers, writes deep-read reports,
archives the results and prints the digest. A date that already has a run
is skipped unless --force is given.

Flags override the settings from the configuration file for this run only.`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings := settingsFromFlags(cmd, cfg.Settings)
	force, _ := cmd.Flags().GetBool("force")

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	res, rec, err := a.orch.RunSync(context.Background(), pipeline.StartRequest{Settings: types.OverrideAll(settings), Force: force})
	if err != nil {
		return err
	}
	if !res.Started {
		return fmt.Errorf("run not started: %s", res.Reason)
	}
	if rec.Status == types.RunError {
		return fmt.Errorf("run for %s failed: %s", rec.RunDate, rec.Error)
	}
	fmt.Println(rec.Digest)
	return nil
}

// settingsFromFlags overlays the flags the user set on base.
func settingsFromFlags(cmd *cobra.Command, base types.Settings) types.Settings {
	s := base
	f := cmd.Flags()
	if f.Changed("fields") {
		s.Fields, _ = f.GetStringSlice("fields")
	}
	if f.Changed("journals") {
		s.Journals, _ = f.GetStringSlice("journals")
	}
	if f.Changed("days") {
		s.DateWindowDays, _ = f.GetInt("days")
	}
	if f.Changed("strict-journal") {
		s.StrictJournal, _ = f.GetBool("strict-journal")
	}
	if f.Changed("exclude") {
		v, _ := f.GetString("exclude")
		s.ExcludeKeywords = rank.ParseKeywords(v)
	}
	if f.Changed("max-reports") {
		s.MaxReports, _ = f.GetInt("max-reports")
	}
	if f.Changed("min-relevance") {
		s.MinRelevance, _ = f.GetFloat64("min-relevance")
	}
	if f.Changed("language") {
		s.Language, _ = f.GetString("language")
	}
	return s
}

func init() {
	runCmd.Flags().Bool("force", false, "run again even if today already has a run")
	runCmd.Flags().StringSlice("fields", nil, "research fields (comma-separated)")
	runCmd.Flags().StringSlice("journals", nil, "preferred journals (comma-separated)")
	runCmd.Flags().Int("days", 0, "fetch window in days")
	runCmd.Flags().Bool("strict-journal", true, "drop papers from journals not listed")
	runCmd.Flags().String("exclude", "", "exclusion keywords (comma-separated)")
	runCmd.Flags().Int("max-reports", 0, "number of deep-read reports")
	runCmd.Flags().Float64("min-relevance", 0, "relevance cutoff for also-notable papers")
	runCmd.Flags().String("language", "", "report and digest language (en or zh)")

	rootCmd.AddCommand(runCmd)
}

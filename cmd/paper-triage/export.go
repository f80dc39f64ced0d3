// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-triage/internal/archive"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the archive to YAML or JSON",
	Long: `Export writes every archived paper with its score and report, plus the
run history, to archive.yaml or archive.json in the export directory.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	summarized, _ := cmd.Flags().GetBool("summarized-only")
	runDate, _ := cmd.Flags().GetString("run-date")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Archive.ExportDir = dir
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := archive.ListOptions{SummarizedOnly: summarized, RunDate: runDate}
	var path string
	switch format {
	case "yaml", "yml":
		path, err = store.ExportYAML(context.Background(), opts)
	case "json":
		path, err = store.ExportJSON(context.Background(), opts)
	default:
		return fmt.Errorf("unsupported format %q (supported: yaml, json)", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported archive to %s\n", path)
	return nil
}

func init() {
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	exportCmd.Flags().String("dir", "", "export directory (overrides archive.export_dir)")
	exportCmd.Flags().Bool("summarized-only", false, "only papers with a deep-read report")
	exportCmd.Flags().String("run-date", "", "only papers first seen on this date (YYYY-MM-DD)")

	rootCmd.AddCommand(exportCmd)
}

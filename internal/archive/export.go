// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// ExportEntry is the export form of an archive entry.
type ExportEntry struct {
	CanonicalID      string             `json:"canonical_id" yaml:"canonical_id"`
	Title            string             `json:"title" yaml:"title"`
	Venue            string             `json:"venue,omitempty" yaml:"venue,omitempty"`
	Date             string             `json:"date,omitempty" yaml:"date,omitempty"`
	Link             string             `json:"link,omitempty" yaml:"link,omitempty"`
	Tags             []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Score            *types.ScoreRecord `json:"score,omitempty" yaml:"score,omitempty"`
	Report           *types.Report      `json:"report,omitempty" yaml:"report,omitempty"`
	HasEmbedding     bool               `json:"has_embedding" yaml:"has_embedding"`
	FirstSeenRunDate string             `json:"first_seen_run_date" yaml:"first_seen_run_date"`
}

// Export is the full archive snapshot written by ExportYAML and ExportJSON.
type Export struct {
	Entries []ExportEntry      `json:"entries" yaml:"entries"`
	Runs    []types.RunSummary `json:"runs" yaml:"runs"`
}

// ExportYAML writes the archive to exportDir/archive.yaml and returns the path.
// It supports the same filters as ListEntries.
func (s *Store) ExportYAML(ctx context.Context, opts ListOptions) (string, error) {
	exp, err := s.snapshot(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return s.writeExport("archive.yaml", data)
}

// ExportJSON writes the archive to exportDir/archive.json and returns the path.
// It supports the same filters as ListEntries.
func (s *Store) ExportJSON(ctx context.Context, opts ListOptions) (string, error) {
	exp, err := s.snapshot(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return s.writeExport("archive.json", data)
}

func (s *Store) writeExport(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(s.exportDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (s *Store) snapshot(ctx context.Context, opts ListOptions) (Export, error) {
	entries, err := s.ListEntries(ctx, opts)
	if err != nil {
		return Export{}, fmt.Errorf("querying for export: %w", err)
	}
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return Export{}, fmt.Errorf("querying runs for export: %w", err)
	}

	exp := Export{
		Entries: make([]ExportEntry, len(entries)),
		Runs:    runs,
	}
	for i, e := range entries {
		exp.Entries[i] = ExportEntry{
			CanonicalID:      e.CanonicalID,
			Title:            e.Paper.Title,
			Venue:            e.Paper.Venue,
			Date:             e.Paper.DateString(),
			Link:             e.Paper.Link,
			Tags:             e.Paper.Tags,
			Score:            e.Score,
			Report:           e.Report,
			HasEmbedding:     len(e.Embedding) > 0,
			FirstSeenRunDate: e.FirstSeenRunDate,
		}
	}
	return exp, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// FileBackend serves papers from a local YAML or JSON file. It is useful
// for offline runs and for replaying a feed captured earlier.
type FileBackend struct {
	Path string
}

// Name returns the backend identifier.
func (b *FileBackend) Name() string { return "file" }

// Fetch reads the file and keeps papers dated inside the request window.
// Undated papers are always kept.
func (b *FileBackend) Fetch(ctx context.Context, req Request) ([]types.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	papers, err := ReadPapers(b.Path)
	if err != nil {
		return nil, err
	}

	from, until := req.Window()
	lo, hi := from.Format(types.DateLayout), until.Format(types.DateLayout)
	var out []types.Paper
	for _, p := range papers {
		if d := p.DateString(); d != "" && (d < lo || d > hi) {
			continue
		}
		if p.Source == "" {
			p.Source = "file"
		}
		out = append(out, p)
	}
	return out, nil
}

// ReadPapers loads a list of papers. Files ending in .json are decoded as
// JSON; anything else as YAML.
func ReadPapers(path string) ([]types.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading papers file: %w", err)
	}

	var papers []types.Paper
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &papers)
	} else {
		err = yaml.Unmarshal(data, &papers)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing papers file %s: %w", path, err)
	}
	return papers, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

var (
	// ErrInvalidFilename is returned for names that are not plain .md files
	// or dates that are not YYYY-MM-DD.
	ErrInvalidFilename = errors.New("invalid report filename")

	// ErrNotFound is returned when a report date or file does not exist.
	ErrNotFound = errors.New("report not found")
)

// DateSummary lists a report directory.
type DateSummary struct {
	Date  string `json:"date"`
	Files int    `json:"files"`
}

// FileInfo describes one report file.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Files manages report markdown files under dir/<date>/<slug>.md.
type Files struct {
	dir string
}

// NewFiles returns a file store rooted at dir. The directory is created on
// first write.
func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

// Dir returns the root directory.
func (f *Files) Dir() string { return f.dir }

// Filename returns the file name used for a paper's report.
func Filename(paperID string) string {
	return identity.Slug(paperID) + ".md"
}

func validDate(date string) error {
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return fmt.Errorf("date %q: %w", date, ErrInvalidFilename)
	}
	return nil
}

func validName(name string) error {
	if !strings.HasSuffix(name, ".md") || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || name == ".md" {
		return fmt.Errorf("%q: %w", name, ErrInvalidFilename)
	}
	return nil
}

func (f *Files) path(date, name string) (string, error) {
	if err := validDate(date); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, date, name), nil
}

// ListDates returns report dates holding at least one file, newest first.
func (f *Files) ListDates() ([]DateSummary, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []DateSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reports directory: %w", err)
	}

	out := []DateSummary{}
	for _, e := range entries {
		if !e.IsDir() || validDate(e.Name()) != nil {
			continue
		}
		files, err := f.ListFiles(e.Name())
		if err != nil || len(files) == 0 {
			continue
		}
		out = append(out, DateSummary{Date: e.Name(), Files: len(files)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// ListFiles returns the markdown files for a date, sorted by name.
func (f *Files) ListFiles(date string) ([]FileInfo, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(f.dir, date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reports for %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading reports for %s: %w", date, err)
	}

	files := []FileInfo{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size()})
	}
	return files, nil
}

// Read returns the content of a report file.
func (f *Files) Read(date, name string) ([]byte, error) {
	p, err := f.path(date, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", date, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return data, nil
}

// Save writes content to a report file, creating the date directory, and
// returns the path.
func (f *Files) Save(date, name string, content []byte) (string, error) {
	p, err := f.path(date, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}
	return p, nil
}

// WriteCard renders the card and saves it under its paper's file name.
func (f *Files) WriteCard(date string, card types.Card, language string) (string, error) {
	content, err := Render(card, language)
	if err != nil {
		return "", err
	}
	return f.Save(date, Filename(card.PaperID), content)
}

// Delete removes a report file and returns the paper id from its
// frontmatter, "" when the file had none.
func (f *Files) Delete(date, name string) (string, error) {
	data, err := f.Read(date, name)
	if err != nil {
		return "", err
	}
	fm, _ := ParseFrontmatter(data)
	p, _ := f.path(date, name)
	if err := os.Remove(p); err != nil {
		return "", fmt.Errorf("removing %s: %w", p, err)
	}
	return fm.PaperID, nil
}

// DeleteDate removes every report of a date and returns the paper ids found
// in the removed files. A missing directory is not an error.
func (f *Files) DeleteDate(date string) ([]string, error) {
	files, err := f.ListFiles(date)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, fi := range files {
		data, err := os.ReadFile(filepath.Join(f.dir, date, fi.Name))
		if err != nil {
			continue
		}
		if fm, err := ParseFrontmatter(data); err == nil && fm.PaperID != "" {
			ids = append(ids, fm.PaperID)
		}
	}
	if err := os.RemoveAll(filepath.Join(f.dir, date)); err != nil {
		return nil, fmt.Errorf("removing reports for %s: %w", date, err)
	}
	return ids, nil
}

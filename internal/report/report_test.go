// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/internal/llm"
	"github.com/pdiddy/paper-triage/pkg/types"
)

type fakeClient struct {
	reply string
	err   error
	last  llm.Request
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.last = req
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.reply, Model: "fake-model"}, nil
}

var testPaper = types.Paper{
	ID:       "doi:10.1038/s41586-024-1",
	Title:    "Protein design with diffusion",
	Venue:    "Nature",
	Abstract: "We design proteins.",
	Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
}

// --- LLMGenerator ---

func TestLLMGenerator_Generate(t *testing.T) {
	client := &fakeClient{reply: `{"methods_detailed":" diffusion over backbones ","main_conclusion":"works","future_direction":"scale","value_assessment":"read it","ai_summary":"short"}`}
	g := NewLLMGenerator(client, "en")
	fixed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	rep, err := g.Generate(context.Background(), testPaper, "")
	require.NoError(t, err)
	assert.Equal(t, "diffusion over backbones", rep.MethodsDetailed)
	assert.Equal(t, "short", rep.AISummary)
	assert.Equal(t, "fake-model", rep.Model)
	assert.Equal(t, fixed, rep.GeneratedAt)

	assert.True(t, client.last.JSON)
	assert.Contains(t, client.last.Prompt, "Title: Protein design with diffusion")
	assert.Contains(t, client.last.Prompt, "Date: 2024-06-01")
	assert.Contains(t, client.last.Prompt, "in English")
	assert.NotContains(t, client.last.Prompt, "Full text")
}

func TestLLMGenerator_ChineseAndSource(t *testing.T) {
	client := &fakeClient{reply: `{"ai_summary":"摘要"}`}
	g := NewLLMGenerator(client, "zh")
	g.sourceText = func(path string) (string, error) {
		assert.Equal(t, "/papers/x.pdf", path)
		return strings.Repeat("x", maxSourceChars+10), nil
	}

	rep, err := g.Generate(context.Background(), testPaper, "/papers/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "摘要", rep.AISummary)
	assert.Contains(t, client.last.Prompt, "Simplified Chinese")
	assert.Contains(t, client.last.Prompt, "Full text")
	assert.NotContains(t, client.last.Prompt, strings.Repeat("x", maxSourceChars+1))
}

func TestLLMGenerator_UnreadableSourceIgnored(t *testing.T) {
	client := &fakeClient{reply: `{"ai_summary":"ok"}`}
	g := NewLLMGenerator(client, "en")
	g.sourceText = func(string) (string, error) { return "", errors.New("corrupt") }

	_, err := g.Generate(context.Background(), testPaper, "bad.pdf")
	require.NoError(t, err)
	assert.NotContains(t, client.last.Prompt, "Full text")
}

func TestLLMGenerator_Failures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		target error
	}{
		{name: "provider", client: &fakeClient{err: errors.New("boom")}},
		{name: "no json", client: &fakeClient{reply: "sorry"}, target: llm.ErrNoJSON},
		{name: "empty", client: &fakeClient{reply: `{"ai_summary":"  "}`}, target: ErrEmptyReport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMGenerator(tt.client, "en").Generate(context.Background(), testPaper, "")
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestSourceText_MissingFile(t *testing.T) {
	_, err := SourceText(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

// --- Render ---

func testCard() types.Card {
	return types.Card{
		PaperID: "doi:10.1038/s41586-024-1",
		Title:   `Protein design: "diffusion"`,
		Venue:   "Nature",
		Date:    "2024-06-01",
		Link:    "https://doi.org/10.1038/s41586-024-1",
		Score:   &types.ScoreRecord{Relevance: 90, Novelty: 80, Rigor: 70, Impact: 60, Total: 78.5},
		Report: &types.Report{
			MethodsDetailed: "Diffusion over backbones.",
			MainConclusion:  "It works.",
			AISummary:       "Short summary.",
		},
		Related: []types.RelatedPaper{
			{PaperID: "arxiv:2401.00001", Title: "Earlier work", Link: "https://arxiv.org/abs/2401.00001", Similarity: 0.82},
			{PaperID: "title:abc", Title: "Unlinked", Similarity: 0.5},
		},
	}
}

func TestRender(t *testing.T) {
	out, err := Render(testCard(), "en")
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "---\n"))
	assert.Contains(t, text, "type: paper-note")
	assert.Contains(t, text, "# Protein design: \"diffusion\"")
	assert.Contains(t, text, "| DOI | [10.1038/s41586-024-1](https://doi.org/10.1038/s41586-024-1) |")
	assert.Contains(t, text, "| Score | 78.5")
	assert.Contains(t, text, "## AI Summary\n\nShort summary.")
	assert.Contains(t, text, "## Method Details")
	assert.NotContains(t, text, "## Future Direction", "empty sections are omitted")
	assert.Contains(t, text, "- [Earlier work](https://arxiv.org/abs/2401.00001) *(sim 82%)*")
	assert.Contains(t, text, "- Unlinked *(sim 50%)*")
	assert.Contains(t, text, "## Reading Notes")

	fm, err := ParseFrontmatter(out)
	require.NoError(t, err)
	assert.Equal(t, "doi:10.1038/s41586-024-1", fm.PaperID)
	assert.Equal(t, `Protein design: "diffusion"`, fm.Title)
	assert.Equal(t, noteType, fm.Type)
}

func TestRender_Chinese(t *testing.T) {
	out, err := Render(testCard(), "zh")
	require.NoError(t, err)
	assert.Contains(t, string(out), "## AI 摘要")
	assert.Contains(t, string(out), "## 阅读笔记")
}

func TestParseFrontmatter_NoHeader(t *testing.T) {
	fm, err := ParseFrontmatter([]byte("# just a note\n"))
	require.NoError(t, err)
	assert.Empty(t, fm.PaperID)
}

// --- Files ---

func TestFiles_Lifecycle(t *testing.T) {
	f := NewFiles(filepath.Join(t.TempDir(), "reports"))

	dates, err := f.ListDates()
	require.NoError(t, err)
	assert.Empty(t, dates)

	path, err := f.WriteCard("2024-06-01", testCard(), "en")
	require.NoError(t, err)
	assert.Equal(t, "doi-10.1038-s41586-024-1.md", filepath.Base(path))

	_, err = f.Save("2024-06-02", "notes.md", []byte("# notes"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "2024-06-02", "ignored.txt"), []byte("x"), 0o644))

	dates, err = f.ListDates()
	require.NoError(t, err)
	assert.Equal(t, []DateSummary{{Date: "2024-06-02", Files: 1}, {Date: "2024-06-01", Files: 1}}, dates)

	files, err := f.ListFiles("2024-06-01")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Positive(t, files[0].Size)

	data, err := f.Read("2024-06-01", files[0].Name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "paper_id:")

	_, err = f.Save("2024-06-01", files[0].Name, []byte("---\npaper_id: doi:10.1038/s41586-024-1\n---\nedited"))
	require.NoError(t, err)
	data, err = f.Read("2024-06-01", files[0].Name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "edited")

	id, err := f.Delete("2024-06-01", files[0].Name)
	require.NoError(t, err)
	assert.Equal(t, "doi:10.1038/s41586-024-1", id)

	_, err = f.Read("2024-06-01", files[0].Name)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFiles_DeleteDate(t *testing.T) {
	f := NewFiles(t.TempDir())
	_, err := f.WriteCard("2024-06-01", testCard(), "en")
	require.NoError(t, err)
	_, err = f.Save("2024-06-01", "plain.md", []byte("no header"))
	require.NoError(t, err)

	ids, err := f.DeleteDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"doi:10.1038/s41586-024-1"}, ids)

	_, err = f.ListFiles("2024-06-01")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err = f.DeleteDate("2024-06-01")
	assert.NoError(t, err)
	assert.Nil(t, ids)
}

func TestFiles_InvalidNames(t *testing.T) {
	f := NewFiles(t.TempDir())
	tests := []struct{ date, name string }{
		{"2024-06-01", "../escape.md"},
		{"2024-06-01", "sub/dir.md"},
		{"2024-06-01", "notes.txt"},
		{"2024-06-01", ".md"},
		{"../etc", "x.md"},
		{"June", "x.md"},
	}
	for _, tt := range tests {
		t.Run(tt.date+"/"+tt.name, func(t *testing.T) {
			_, err := f.Read(tt.date, tt.name)
			assert.ErrorIs(t, err, ErrInvalidFilename)
			_, err = f.Save(tt.date, tt.name, []byte("x"))
			assert.ErrorIs(t, err, ErrInvalidFilename)
		})
	}
}

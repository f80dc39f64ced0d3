// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/pkg/types"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantID   string
		wantKind Kind
	}{
		{"doi prefix", "doi:10.1038/S41586-024-0001", "doi:10.1038/s41586-024-0001", KindDOI},
		{"doi prefix upper", "  DOI:10.1038/abc ", "doi:10.1038/abc", KindDOI},
		{"bare doi", "10.1145/1234567.1234568", "doi:10.1145/1234567.1234568", KindDOI},
		{"doi url", "https://doi.org/10.1126/science.abc123", "doi:10.1126/science.abc123", KindDOI},
		{"dx doi url", "http://dx.doi.org/10.1126/Science.X", "doi:10.1126/science.x", KindDOI},
		{"arxiv prefix with version", "arXiv:2301.07041v2", "arxiv:2301.07041", KindArxiv},
		{"arxiv lowercase prefix", "arxiv:2301.07041", "arxiv:2301.07041", KindArxiv},
		{"bare arxiv", "2301.07041v1", "arxiv:2301.07041", KindArxiv},
		{"arxiv abs url", "https://arxiv.org/abs/2401.12345v3", "arxiv:2401.12345", KindArxiv},
		{"arxiv pdf url", "https://arxiv.org/pdf/2401.12345.pdf", "arxiv:2401.12345", KindArxiv},
		{"legacy arxiv", "arXiv:hep-th/9901001v1", "arxiv:hep-th/9901001", KindArxiv},
		{"arxiv doi", "doi:10.48550/arXiv.2301.07041", "arxiv:2301.07041", KindArxiv},
		{"pmid", "PMID:0012345", "pmid:12345", KindPMID},
		{"pubmed url", "https://pubmed.ncbi.nlm.nih.gov/38912345/", "pmid:38912345", KindPMID},
		{"bare digits are not pmid", "12345", "", KindUnknown},
		{"empty", "   ", "", KindUnknown},
		{"garbage doi", "doi:not-a-doi", "", KindUnknown},
		{"zero pmid", "pmid:000", "", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind := Canonicalize(tt.input)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestCanonicalize_EquivalentForms(t *testing.T) {
	forms := []string{
		"doi:10.1/X",
		"DOI:10.1/x",
		"https://doi.org/10.1/X",
		" 10.1/x ",
	}
	want, _ := Canonicalize(forms[0])
	for _, f := range forms[1:] {
		got, _ := Canonicalize(f)
		assert.Equal(t, want, got, "form %q", f)
	}
}

func TestTitleKeyAndID(t *testing.T) {
	assert.Equal(t, "deep learning for proteins", TitleKey("  Deep Learning, for   Proteins! "))
	assert.Equal(t, TitleID("Deep learning for proteins"), TitleID("DEEP LEARNING FOR PROTEINS."))
	assert.NotEqual(t, TitleID("A"), TitleID("B"))
	assert.Equal(t, "", TitleID("?!"))
	assert.Equal(t, KindTitle, KindOf(TitleID("Something")))
}

func TestLink(t *testing.T) {
	assert.Equal(t, "https://doi.org/10.1/x", Link("doi:10.1/x", "https://example.org"))
	assert.Equal(t, "https://arxiv.org/abs/2301.07041", Link("arxiv:2301.07041", ""))
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/123/", Link("pmid:123", ""))
	assert.Equal(t, "https://example.org", Link("title:abcd", "https://example.org"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "doi-10.1038-s41586", Slug("doi:10.1038/s41586"))
	assert.NotContains(t, Slug("doi:10.1/../../etc"), "..")
}

// fakeLookup is an in-memory archive for resolver tests.
type fakeLookup struct {
	entries map[string]types.ArchiveEntry
	err     error
}

func (f *fakeLookup) LookupEntries(_ context.Context, ids []string) (map[string]types.ArchiveEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]types.ArchiveEntry)
	for _, id := range ids {
		if e, ok := f.entries[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (f *fakeLookup) FindByTitleKey(_ context.Context, key string) ([]types.ArchiveEntry, error) {
	var out []types.ArchiveEntry
	for _, e := range f.entries {
		if TitleKey(e.Paper.Title) == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestResolve_MergesArchivedEntry(t *testing.T) {
	lookup := &fakeLookup{entries: map[string]types.ArchiveEntry{
		"doi:10.1/x": {
			CanonicalID: "doi:10.1/x",
			Paper:       types.Paper{ID: "doi:10.1/x", Title: "Paper X", Tags: []string{"ml"}},
		},
	}}
	r := NewResolver(lookup)

	res, err := r.Resolve(context.Background(), []types.Paper{
		{ID: "DOI:10.1/X", Title: "Paper X", Abstract: "now with abstract", Tags: []string{"bio", "ml"}},
	})
	require.NoError(t, err)

	assert.Empty(t, res.New)
	require.Len(t, res.Merges, 1)
	m := res.Merges[0]
	assert.True(t, m.Changed)
	assert.Equal(t, "doi:10.1/x", m.Entry.CanonicalID)
	assert.Equal(t, []string{"ml", "bio"}, m.Entry.Paper.Tags)
	assert.Equal(t, "now with abstract", m.Entry.Paper.Abstract)
	assert.Equal(t, 1, res.Duplicates())
}

func TestResolve_DoesNotOverwriteExistingFields(t *testing.T) {
	lookup := &fakeLookup{entries: map[string]types.ArchiveEntry{
		"arxiv:2301.07041": {
			CanonicalID: "arxiv:2301.07041",
			Paper:       types.Paper{Title: "Original", Abstract: "kept", Venue: "arXiv"},
		},
	}}
	res, err := NewResolver(lookup).Resolve(context.Background(), []types.Paper{
		{ID: "2301.07041v3", Title: "Changed", Abstract: "ignored", Venue: "NeurIPS"},
	})
	require.NoError(t, err)
	require.Len(t, res.Merges, 1)
	p := res.Merges[0].Entry.Paper
	assert.Equal(t, "Original", p.Title)
	assert.Equal(t, "kept", p.Abstract)
	assert.Equal(t, "arXiv", p.Venue)
}

func TestResolve_CollapsesWithinBatch(t *testing.T) {
	date := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	res, err := NewResolver(&fakeLookup{}).Resolve(context.Background(), []types.Paper{
		{ID: "doi:10.1/a", Title: "A", Tags: []string{"x"}},
		{ID: "https://doi.org/10.1/A", Title: "A", Date: date, Tags: []string{"y"}},
		{ID: "doi:10.1/b", Title: "B"},
	})
	require.NoError(t, err)
	require.Len(t, res.New, 2)
	assert.Equal(t, "doi:10.1/a", res.New[0].CanonicalID)
	assert.Equal(t, 2, res.New[0].Sightings)
	assert.Equal(t, []string{"x", "y"}, res.New[0].Paper.Tags)
	assert.Equal(t, date, res.New[0].Paper.Date)
	assert.Equal(t, "https://doi.org/10.1/a", res.New[0].Paper.Link)
	assert.Equal(t, 1, res.Duplicates())
}

func TestResolve_TitleFallbackIsAmbiguousNotMerged(t *testing.T) {
	lookup := &fakeLookup{entries: map[string]types.ArchiveEntry{
		"doi:10.1/x": {CanonicalID: "doi:10.1/x", Paper: types.Paper{Title: "Graph Neural Networks"}},
	}}
	res, err := NewResolver(lookup).Resolve(context.Background(), []types.Paper{
		{Title: "graph neural networks."},
	})
	require.NoError(t, err)

	require.Len(t, res.New, 1)
	assert.Equal(t, KindTitle, res.New[0].Kind)
	assert.Empty(t, res.Merges)
	require.Len(t, res.Ambiguities, 1)
	assert.Equal(t, "doi:10.1/x", res.Ambiguities[0].MatchedID)
	assert.Contains(t, res.Ambiguities[0].String(), "kept both")
}

func TestResolve_TitleFallbackMergesSameTitleKey(t *testing.T) {
	id := TitleID("A Study")
	lookup := &fakeLookup{entries: map[string]types.ArchiveEntry{
		id: {CanonicalID: id, Paper: types.Paper{Title: "A Study"}},
	}}
	res, err := NewResolver(lookup).Resolve(context.Background(), []types.Paper{{Title: "a study"}})
	require.NoError(t, err)
	assert.Empty(t, res.New)
	assert.Len(t, res.Merges, 1)
	assert.Empty(t, res.Ambiguities)
}

func TestResolve_RealIDsWithSameTitleAreDistinct(t *testing.T) {
	lookup := &fakeLookup{entries: map[string]types.ArchiveEntry{
		"doi:10.1/x": {CanonicalID: "doi:10.1/x", Paper: types.Paper{Title: "Same"}},
	}}
	res, err := NewResolver(lookup).Resolve(context.Background(), []types.Paper{{ID: "doi:10.1/y", Title: "Same"}})
	require.NoError(t, err)
	assert.Len(t, res.New, 1)
	assert.Empty(t, res.Ambiguities)
}

func TestResolve_DropsPapersWithoutIdentity(t *testing.T) {
	res, err := NewResolver(&fakeLookup{}).Resolve(context.Background(), []types.Paper{{Abstract: "no id, no title"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Empty(t, res.New)
}

func TestResolve_LookupError(t *testing.T) {
	_, err := NewResolver(&fakeLookup{err: errors.New("db down")}).Resolve(context.Background(), []types.Paper{{ID: "doi:10.1/x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

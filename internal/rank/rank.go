// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank splits the scored papers of a run into deep-read and
// also-notable tiers.
package rank

import (
	"sort"
	"strings"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// Options controls selection for one run.
type Options struct {
	// StrictJournal drops papers whose venue matches none of Journals.
	StrictJournal bool
	Journals      []string

	// ExcludeKeywords drops papers whose title or abstract contains any
	// keyword, case-insensitively.
	ExcludeKeywords []string

	// MaxReports is the number of deep-read candidates.
	MaxReports int

	// MinRelevance is the relevance cutoff for the also-notable tier.
	MinRelevance float64
}

// OptionsFromSettings maps per-run settings to selection options.
func OptionsFromSettings(s types.Settings) Options {
	return Options{
		StrictJournal:   s.StrictJournal,
		Journals:        s.Journals,
		ExcludeKeywords: s.ExcludeKeywords,
		MaxReports:      s.MaxReports,
		MinRelevance:    s.MinRelevance,
	}
}

// Scored is a paper with its canonical id and score.
type Scored struct {
	CanonicalID string
	Paper       types.Paper
	Score       types.ScoreRecord
}

// ExclusionReason says why a paper was filtered before sorting.
type ExclusionReason string

const (
	ExcludedJournal ExclusionReason = "journal"
	ExcludedKeyword ExclusionReason = "keyword"
)

// Exclusion records a filtered paper.
type Exclusion struct {
	Scored
	Reason ExclusionReason
	// Detail is the matched keyword for keyword exclusions.
	Detail string
}

// Selection is the outcome of Select. DeepRead, AlsoNotable and Below are
// in rank order; every input appears in exactly one list.
type Selection struct {
	DeepRead    []Scored
	AlsoNotable []Scored
	Below       []Scored
	Excluded    []Exclusion
}

// Select filters, sorts and tiers the scored papers. It does not modify
// its input and returns the same result for the same input regardless of
// input order.
func Select(scored []Scored, opts Options) Selection {
	var sel Selection
	keywords := normalizeKeywords(opts.ExcludeKeywords)

	kept := make([]Scored, 0, len(scored))
	for _, s := range scored {
		if opts.StrictJournal && len(opts.Journals) > 0 && !MatchesJournal(s.Paper, opts.Journals) {
			sel.Excluded = append(sel.Excluded, Exclusion{Scored: s, Reason: ExcludedJournal})
			continue
		}
		if kw, ok := matchKeyword(s.Paper, keywords); ok {
			sel.Excluded = append(sel.Excluded, Exclusion{Scored: s, Reason: ExcludedKeyword, Detail: kw})
			continue
		}
		kept = append(kept, s)
	}

	Sort(kept)

	n := opts.MaxReports
	if n < 0 {
		n = 0
	}
	if n > len(kept) {
		n = len(kept)
	}
	sel.DeepRead = kept[:n:n]
	for _, s := range kept[n:] {
		if s.Score.Relevance >= opts.MinRelevance {
			sel.AlsoNotable = append(sel.AlsoNotable, s)
		} else {
			sel.Below = append(sel.Below, s)
		}
	}
	sort.SliceStable(sel.Excluded, func(i, j int) bool {
		return sel.Excluded[i].CanonicalID < sel.Excluded[j].CanonicalID
	})
	return sel
}

// Sort orders papers by total descending, novelty descending, publication
// date descending and finally canonical id ascending.
func Sort(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool { return Less(s[i], s[j]) })
}

// Less reports whether a ranks ahead of b.
func Less(a, b Scored) bool {
	if a.Score.Total != b.Score.Total {
		return a.Score.Total > b.Score.Total
	}
	if a.Score.Novelty != b.Score.Novelty {
		return a.Score.Novelty > b.Score.Novelty
	}
	if !a.Paper.Date.Equal(b.Paper.Date) {
		return a.Paper.Date.After(b.Paper.Date)
	}
	return a.CanonicalID < b.CanonicalID
}

// MatchesJournal reports whether the paper's venue contains one of the
// journal names, case-insensitively. A journal named arXiv also matches
// papers from the arXiv backend whose venue is empty.
func MatchesJournal(p types.Paper, journals []string) bool {
	venue := strings.ToLower(p.Venue)
	for _, j := range journals {
		name := strings.ToLower(strings.TrimSpace(j))
		if name == "" {
			continue
		}
		if venue != "" && strings.Contains(venue, name) {
			return true
		}
		if name == "arxiv" && (strings.EqualFold(p.Source, "arxiv") || strings.HasPrefix(strings.ToLower(p.ID), "arxiv:")) {
			return true
		}
	}
	return false
}

func normalizeKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, k := range kws {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func matchKeyword(p types.Paper, keywords []string) (string, bool) {
	if len(keywords) == 0 {
		return "", false
	}
	title := strings.ToLower(p.Title)
	abstract := strings.ToLower(p.Abstract)
	for _, k := range keywords {
		if strings.Contains(title, k) || strings.Contains(abstract, k) {
			return k, true
		}
	}
	return "", false
}

// ParseKeywords splits a comma or newline separated keyword list, dropping
// blanks and duplicates.
func ParseKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' || r == '，' })
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

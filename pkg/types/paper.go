// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Paper is a publication as delivered by a fetch backend.
type Paper struct {
	// ID is the identifier as fetched (e.g. "doi:10.1038/x", "arXiv:2301.07041v2",
	// "https://doi.org/10.1038/x"). The resolver derives the canonical form.
	ID string `json:"id" yaml:"id"`

	Title    string   `json:"title" yaml:"title"`
	Venue    string   `json:"venue" yaml:"venue"`
	Authors  []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Link     string   `json:"link,omitempty" yaml:"link,omitempty"`

	// Date is the publication date.
	Date time.Time `json:"date" yaml:"date"`

	// Tags is the set of topic labels attached by the fetch backends.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Source names the backend that produced the sighting (e.g. "arxiv", "openalex").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// DateString formats the publication date as YYYY-MM-DD, or "" when unknown.
func (p Paper) DateString() string {
	if p.Date.IsZero() {
		return ""
	}
	return p.Date.Format(DateLayout)
}

// DateLayout is the calendar date format used for run dates and publication dates.
const DateLayout = "2006-01-02"

// ScoreRecord holds the oracle's rubric scores for one paper. Every
// dimension is clamped to 0-100; Total is derived by an aggregator.
type ScoreRecord struct {
	Relevance float64 `json:"relevance" yaml:"relevance"`
	Novelty   float64 `json:"novelty" yaml:"novelty"`
	Rigor     float64 `json:"rigor" yaml:"rigor"`
	Impact    float64 `json:"impact" yaml:"impact"`
	Total     float64 `json:"total" yaml:"total"`
	Rationale string  `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Model     string  `json:"model,omitempty" yaml:"model,omitempty"`
}

// Clamp bounds every rubric dimension to the 0-100 range.
func (s *ScoreRecord) Clamp() {
	s.Relevance = clamp100(s.Relevance)
	s.Novelty = clamp100(s.Novelty)
	s.Rigor = clamp100(s.Rigor)
	s.Impact = clamp100(s.Impact)
}

func clamp100(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Report is the structured deep-read write-up for one paper.
type Report struct {
	MethodsDetailed string    `json:"methods_detailed" yaml:"methods_detailed"`
	MainConclusion  string    `json:"main_conclusion" yaml:"main_conclusion"`
	FutureDirection string    `json:"future_direction" yaml:"future_direction"`
	ValueAssessment string    `json:"value_assessment" yaml:"value_assessment"`
	AISummary       string    `json:"ai_summary" yaml:"ai_summary"`
	Model           string    `json:"model,omitempty" yaml:"model,omitempty"`
	GeneratedAt     time.Time `json:"generated_at" yaml:"generated_at"`
}

// IsEmpty reports whether the report carries no text.
func (r *Report) IsEmpty() bool {
	if r == nil {
		return true
	}
	for _, s := range []string{r.MethodsDetailed, r.MainConclusion, r.FutureDirection, r.ValueAssessment, r.AISummary} {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// Summary returns the shortest useful one-paragraph description of the report.
func (r *Report) Summary() string {
	if r == nil {
		return ""
	}
	if s := strings.TrimSpace(r.AISummary); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.ValueAssessment); s != "" {
		return s
	}
	return strings.TrimSpace(r.MainConclusion)
}

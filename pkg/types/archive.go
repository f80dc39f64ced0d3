// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ArchiveEntry is the persisted record for one canonical paper.
type ArchiveEntry struct {
	// CanonicalID is the normalized identity ("doi:...", "arxiv:...",
	// "pmid:...", or a "title:..." fallback). Unique across the archive.
	CanonicalID string `json:"canonical_id" yaml:"canonical_id"`

	Paper  Paper        `json:"paper" yaml:"paper"`
	Score  *ScoreRecord `json:"score,omitempty" yaml:"score,omitempty"`
	Report *Report      `json:"report,omitempty" yaml:"report,omitempty"`

	Embedding      []float32 `json:"-" yaml:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`

	// FirstSeenRunDate is the run date on which the paper first entered the archive.
	FirstSeenRunDate string    `json:"first_seen_run_date" yaml:"first_seen_run_date"`
	StoredAt         time.Time `json:"stored_at" yaml:"stored_at"`
}

// Summarized reports whether the entry carries a non-empty report.
func (e ArchiveEntry) Summarized() bool {
	return !e.Report.IsEmpty()
}

// Total returns the aggregated score, or 0 for unscored entries.
func (e ArchiveEntry) Total() float64 {
	if e.Score == nil {
		return 0
	}
	return e.Score.Total
}

// RelatedPaper is a nearest-neighbour summary attached to a deep-read card.
type RelatedPaper struct {
	PaperID    string  `json:"paper_id" yaml:"paper_id"`
	Title      string  `json:"title" yaml:"title"`
	Venue      string  `json:"venue,omitempty" yaml:"venue,omitempty"`
	Date       string  `json:"date,omitempty" yaml:"date,omitempty"`
	Link       string  `json:"link,omitempty" yaml:"link,omitempty"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
	Summary    string  `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Card is a paper as listed in a RunRecord tier.
type Card struct {
	PaperID  string         `json:"paper_id" yaml:"paper_id"`
	Title    string         `json:"title" yaml:"title"`
	Venue    string         `json:"venue" yaml:"venue"`
	Date     string         `json:"date" yaml:"date"`
	Link     string         `json:"link,omitempty" yaml:"link,omitempty"`
	Abstract string         `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Tags     []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Score    *ScoreRecord   `json:"score,omitempty" yaml:"score,omitempty"`
	Report   *Report        `json:"report,omitempty" yaml:"report,omitempty"`
	Related  []RelatedPaper `json:"related,omitempty" yaml:"related,omitempty"`
}

// CardFromEntry builds a card for the entry without related papers.
func CardFromEntry(e ArchiveEntry) Card {
	return Card{
		PaperID:  e.CanonicalID,
		Title:    e.Paper.Title,
		Venue:    e.Paper.Venue,
		Date:     e.Paper.DateString(),
		Link:     e.Paper.Link,
		Abstract: e.Paper.Abstract,
		Tags:     e.Paper.Tags,
		Score:    e.Score,
		Report:   e.Report,
	}
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunIdle    RunStatus = "idle"
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunError   RunStatus = "error"
)

// RunRecord is the persisted outcome of one pipeline run. At most one
// record exists per calendar date.
type RunRecord struct {
	RunDate     string    `json:"run_date" yaml:"run_date"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	Status      RunStatus `json:"status" yaml:"status"`
	TotalCount  int       `json:"total_count" yaml:"total_count"`
	DeepReads   []Card    `json:"deep_reads" yaml:"deep_reads"`
	AlsoNotable []Card    `json:"also_notable" yaml:"also_notable"`
	Digest      string    `json:"digest,omitempty" yaml:"digest,omitempty"`
	Logs        []string  `json:"logs" yaml:"logs"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
}

// RunSummary is the listing form of a RunRecord.
type RunSummary struct {
	RunDate     string    `json:"run_date"`
	Status      RunStatus `json:"status"`
	TotalCount  int       `json:"total_count"`
	DeepReads   int       `json:"deep_reads"`
	AlsoNotable int       `json:"also_notable"`
	FinishedAt  time.Time `json:"finished_at"`
}

// GraphNode is one archive entry in a similarity graph.
type GraphNode struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Venue      string `json:"venue"`
	Date       string `json:"date"`
	Link       string `json:"link,omitempty"`
	Group      string `json:"group"`
	Summarized bool   `json:"summarized"`
}

// SimilarityEdge connects two graph nodes whose cosine similarity meets the
// requested threshold. Edges are computed on demand and never persisted.
type SimilarityEdge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Similarity float64 `json:"similarity"`
	Weight     float64 `json:"weight"`
}

// Graph is the node/edge payload returned by similarity queries.
type Graph struct {
	Nodes []GraphNode      `json:"nodes"`
	Edges []SimilarityEdge `json:"edges"`
}

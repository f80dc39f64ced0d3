// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// PromoteResult is the outcome of a promotion. Promoted is false when the
// paper already was a deep read.
type PromoteResult struct {
	Promoted bool       `json:"promoted"`
	Card     types.Card `json:"card"`
}

// Promote moves an also-notable paper of the run on date to its deep
// reads, generating the report it lacks. It takes a lock scoped to the
// paper and does not wait for a running pipeline. Promoting a paper twice
// leaves a single deep-read card.
func (o *Orchestrator) Promote(ctx context.Context, date, paperID string) (PromoteResult, error) {
	unlock := o.lockPaper(paperID)
	defer unlock()

	rec, err := o.deps.Store.GetRun(ctx, date)
	if err != nil {
		return PromoteResult{}, fmt.Errorf("loading run %s: %w", date, err)
	}
	for _, c := range rec.DeepReads {
		if c.PaperID == paperID {
			return PromoteResult{Card: c}, nil
		}
	}
	listed := false
	for _, c := range rec.AlsoNotable {
		if c.PaperID == paperID {
			listed = true
			break
		}
	}
	if !listed {
		return PromoteResult{}, fmt.Errorf("%s in run %s: %w", paperID, date, ErrNotNotable)
	}

	entry, err := o.deps.Store.GetEntry(ctx, paperID)
	if err != nil {
		return PromoteResult{}, fmt.Errorf("loading entry %s: %w", paperID, err)
	}

	s := o.opts.Settings
	if entry.Score == nil {
		score, err := o.deps.NewScorer(s).Score(ctx, entry.Paper)
		if err != nil {
			return PromoteResult{}, fmt.Errorf("scoring %s: %w", paperID, err)
		}
		entry.Score = &score
	}

	if entry.Report.IsEmpty() {
		source := o.fullText(ctx, entry.CanonicalID, entry.Paper)
		rep, err := o.deps.NewGenerator(s.Language).Generate(ctx, entry.Paper, source)
		if err != nil {
			return PromoteResult{}, fmt.Errorf("generating report for %s: %w", paperID, err)
		}
		if rep.IsEmpty() {
			return PromoteResult{}, fmt.Errorf("%s: %w", paperID, report.ErrEmptyReport)
		}
		entry.Report = &rep
	}

	exclude := make(map[string]bool, len(rec.DeepReads)+len(rec.AlsoNotable))
	for _, c := range rec.DeepReads {
		exclude[c.PaperID] = true
	}
	for _, c := range rec.AlsoNotable {
		exclude[c.PaperID] = true
	}

	card := types.CardFromEntry(entry)
	if o.deps.Similarity != nil {
		rel, err := o.deps.Similarity.Related(ctx, paperID, o.opts.RelatedK, exclude)
		if err != nil {
			fmt.Fprintf(o.log, "warning: related papers for %s: %v\n", paperID, err)
		}
		card.Related = rel
	}

	promoted, err := o.deps.Store.PromoteCard(ctx, date, entry, card)
	if errors.Is(err, archive.ErrCardNotFound) {
		return PromoteResult{}, fmt.Errorf("%s in run %s: %w", paperID, date, ErrNotNotable)
	}
	if err != nil {
		return PromoteResult{}, &PersistenceError{Op: "promote", Err: err}
	}

	if promoted && o.deps.Files != nil {
		if _, err := o.deps.Files.WriteCard(date, card, s.Language); err != nil {
			fmt.Fprintf(o.log, "warning: writing report file for %s: %v\n", paperID, err)
		}
	}
	fmt.Fprintf(o.log, "promoted %s in run %s\n", paperID, date)
	return PromoteResult{Promoted: promoted, Card: card}, nil
}

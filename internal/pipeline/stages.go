// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-triage/internal/acquire"
	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/fetch"
	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/internal/notify"
	"github.com/pdiddy/paper-triage/internal/rank"
	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/internal/scorer"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// item is one paper of the run on its way to the archive.
type item struct {
	entry types.ArchiveEntry
	isNew bool
	dirty bool
}

// pipeline executes every stage for one run and returns the finished
// record. Fetch and archive failures abort the run; per-paper failures are
// logged and the paper is dropped or demoted.
func (o *Orchestrator) pipeline(ctx context.Context, r *run) (types.RunRecord, error) {
	rec := types.RunRecord{
		RunDate:   r.date,
		RunID:     r.id,
		Status:    types.RunRunning,
		StartedAt: r.started,
	}
	s := r.settings

	// Fetch.
	papers, err := o.deps.Fetcher.Fetch(ctx, fetch.Request{
		Journals:       s.Journals,
		Fields:         s.Fields,
		DateWindowDays: s.DateWindowDays,
		Until:          r.started,
	})
	if err != nil {
		return rec, &FetchError{Err: err}
	}
	rec.TotalCount = len(papers)
	o.update(func(st *Snapshot) { st.Total = len(papers) })
	o.logf("fetched %d papers", len(papers))

	// Resolve.
	res, err := identity.NewResolver(o.deps.Store).Resolve(ctx, papers)
	if err != nil {
		return rec, &PersistenceError{Op: "resolve", Err: err}
	}
	for _, a := range res.Ambiguities {
		o.logf("%s", a)
	}
	if res.Dropped > 0 {
		o.logf("skipped %d papers without identifier or title", res.Dropped)
	}
	o.logf("resolved: %d new, %d already archived, %d duplicate sightings", len(res.New), len(res.Merges), res.Duplicates())

	items := make(map[string]*item)
	var ranked []rank.Scored

	// Papers first archived by an earlier run of the same date rejoin the
	// ranking with their stored score; all other archived papers are only
	// merged.
	for _, m := range res.Merges {
		it := &item{entry: m.Entry, dirty: m.Changed}
		items[m.Entry.CanonicalID] = it
		if m.Entry.FirstSeenRunDate == r.date && m.Entry.Score != nil {
			ranked = append(ranked, rank.Scored{CanonicalID: m.Entry.CanonicalID, Paper: m.Entry.Paper, Score: *m.Entry.Score})
		}
	}

	// Score.
	ranked = append(ranked, o.score(ctx, s, res.New, r, items)...)

	// Rank.
	sel := rank.Select(ranked, rank.OptionsFromSettings(s))
	for _, ex := range sel.Excluded {
		if ex.Reason == rank.ExcludedKeyword {
			o.logf("excluded %s: keyword %q", ex.CanonicalID, ex.Detail)
		} else {
			o.logf("excluded %s: venue %q not in journals", ex.CanonicalID, ex.Paper.Venue)
		}
	}
	o.logf("ranked %d papers: %d deep read candidates, %d also notable", len(ranked), len(sel.DeepRead), len(sel.AlsoNotable))

	// Reports.
	deep, demoted := o.writeReports(ctx, s.Language, sel.DeepRead, items)
	also := append(append([]rank.Scored(nil), sel.AlsoNotable...), demoted...)
	rank.Sort(also)
	o.update(func(st *Snapshot) { st.Reports = len(deep) })

	// Embeddings.
	o.embed(ctx, items)

	// Commit.
	var commit archive.Commit
	for _, id := range sortedIDs(items) {
		it := items[id]
		switch {
		case it.isNew:
			commit.New = append(commit.New, it.entry)
		case it.dirty:
			commit.Merged = append(commit.Merged, it.entry)
		}
	}
	if err := o.deps.Store.CommitRun(ctx, commit); err != nil {
		return rec, &PersistenceError{Op: "commit", Err: err}
	}
	o.logf("archived %d new and %d updated entries", len(commit.New), len(commit.Merged))

	// Related papers, from committed entries only.
	siblings := make(map[string]bool, len(ranked))
	for _, sc := range ranked {
		siblings[sc.CanonicalID] = true
	}
	for _, sc := range deep {
		card := types.CardFromEntry(items[sc.CanonicalID].entry)
		card.Related = o.related(ctx, sc.CanonicalID, siblings)
		rec.DeepReads = append(rec.DeepReads, card)
	}
	rec.AlsoNotable = []types.Card{}
	for _, sc := range also {
		rec.AlsoNotable = append(rec.AlsoNotable, types.CardFromEntry(items[sc.CanonicalID].entry))
	}

	// Report files.
	o.writeFiles(r, rec.DeepReads)

	// Digest and record.
	rec.Digest = notify.Digest(rec, s.Language)
	rec.Status = types.RunDone
	rec.FinishedAt = o.opts.Now()
	rec.Logs = o.Status().Logs
	if err := o.deps.Store.SaveRun(ctx, rec); err != nil {
		return rec, &PersistenceError{Op: "save run", Err: err}
	}
	o.logf("run %s done: %d deep reads, %d also notable", r.date, len(rec.DeepReads), len(rec.AlsoNotable))

	// Delivery.
	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.Notify(ctx, rec); err != nil {
			o.logf("warning: digest delivery failed: %v", err)
		} else {
			o.logf("digest delivered")
		}
		rec.Logs = o.Status().Logs
		if err := o.deps.Store.SaveRun(ctx, rec); err != nil {
			o.logf("warning: could not update run logs: %v", err)
		}
	}
	return rec, nil
}

// score rates the new candidates through the worker pool. Papers whose
// score is unavailable are logged and left out of the run.
func (o *Orchestrator) score(ctx context.Context, s types.Settings, cands []identity.Candidate, r *run, items map[string]*item) []rank.Scored {
	if len(cands) == 0 {
		return nil
	}
	sc := o.deps.NewScorer(s)

	type result struct {
		score types.ScoreRecord
		err   error
	}
	results := make([]result, len(cands))
	o.forEach(len(cands), func(i int) {
		rec, err := sc.Score(ctx, cands[i].Paper)
		results[i] = result{score: rec, err: err}
	})

	var out []rank.Scored
	failed := 0
	for i, c := range cands {
		res := results[i]
		if res.err != nil {
			failed++
			if errors.Is(res.err, scorer.ErrScoreUnavailable) {
				o.logf("score unavailable for %s: %v", c.CanonicalID, res.err)
			} else {
				o.logf("scoring %s failed: %v", c.CanonicalID, res.err)
			}
			continue
		}
		score := res.score
		items[c.CanonicalID] = &item{
			entry: types.ArchiveEntry{
				CanonicalID:      c.CanonicalID,
				Paper:            c.Paper,
				Score:            &score,
				FirstSeenRunDate: r.date,
				StoredAt:         o.opts.Now(),
			},
			isNew: true,
			dirty: true,
		}
		out = append(out, rank.Scored{CanonicalID: c.CanonicalID, Paper: c.Paper, Score: score})
	}
	o.logf("scored %d papers (%d unavailable)", len(out), failed)
	return out
}

// writeReports generates reports for the deep-read candidates. Entries
// that already carry a report keep it. A candidate whose report fails is
// demoted.
func (o *Orchestrator) writeReports(ctx context.Context, language string, cands []rank.Scored, items map[string]*item) (deep, demoted []rank.Scored) {
	if len(cands) == 0 {
		return nil, nil
	}
	gen := o.deps.NewGenerator(language)

	reports := make([]*types.Report, len(cands))
	errs := make([]error, len(cands))
	o.forEach(len(cands), func(i int) {
		it := items[cands[i].CanonicalID]
		if !it.entry.Report.IsEmpty() {
			reports[i] = it.entry.Report
			return
		}
		source := o.fullText(ctx, it.entry.CanonicalID, it.entry.Paper)
		rep, err := gen.Generate(ctx, it.entry.Paper, source)
		if err == nil && rep.IsEmpty() {
			err = report.ErrEmptyReport
		}
		if err != nil {
			errs[i] = err
			return
		}
		reports[i] = &rep
	})

	for i, c := range cands {
		if errs[i] != nil {
			o.logf("report for %s failed, moved to also notable: %v", c.CanonicalID, errs[i])
			demoted = append(demoted, c)
			continue
		}
		it := items[c.CanonicalID]
		if it.entry.Report != reports[i] {
			it.entry.Report = reports[i]
			it.dirty = true
		}
		deep = append(deep, c)
	}
	o.logf("generated %d reports (%d failed)", len(deep), len(demoted))
	return deep, demoted
}

// fullText returns the local PDF for a paper, or "" when there is none.
func (o *Orchestrator) fullText(ctx context.Context, id string, p types.Paper) string {
	if o.deps.FullText == nil {
		return ""
	}
	path, err := o.deps.FullText.Acquire(ctx, id, p)
	if err != nil {
		if !errors.Is(err, acquire.ErrNoFullText) {
			o.logf("full text for %s unavailable: %v", id, err)
		}
		return ""
	}
	return path
}

// embed computes embeddings for new entries. Failures leave the entry
// without an embedding; the similarity engine fills it lazily.
func (o *Orchestrator) embed(ctx context.Context, items map[string]*item) {
	if o.deps.Similarity == nil {
		return
	}
	var fresh []*item
	for _, id := range sortedIDs(items) {
		if items[id].isNew {
			fresh = append(fresh, items[id])
		}
	}
	if len(fresh) == 0 {
		return
	}

	errs := make([]error, len(fresh))
	o.forEach(len(fresh), func(i int) {
		vec, model, err := o.deps.Similarity.Embed(ctx, fresh[i].entry.Paper)
		if err != nil {
			errs[i] = err
			return
		}
		fresh[i].entry.Embedding = vec
		fresh[i].entry.EmbeddingModel = model
	})

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			if failed == 1 {
				o.logf("warning: embedding %s failed: %v", fresh[i].entry.CanonicalID, err)
			}
		}
	}
	if failed > 0 {
		o.logf("embedded %d of %d new entries; the rest are embedded on first use", len(fresh)-failed, len(fresh))
	}
}

func (o *Orchestrator) related(ctx context.Context, id string, exclude map[string]bool) []types.RelatedPaper {
	if o.deps.Similarity == nil {
		return nil
	}
	rel, err := o.deps.Similarity.Related(ctx, id, o.opts.RelatedK, exclude)
	if err != nil {
		o.logf("warning: related papers for %s: %v", id, err)
		return nil
	}
	return rel
}

// writeFiles writes one markdown report per deep read. A forced re-run
// first clears the files of the replaced run.
func (o *Orchestrator) writeFiles(r *run, cards []types.Card) {
	if o.deps.Files == nil {
		return
	}
	if r.force {
		if _, err := o.deps.Files.DeleteDate(r.date); err != nil {
			o.logf("warning: clearing report files for %s: %v", r.date, err)
		}
	}
	for _, c := range cards {
		if _, err := o.deps.Files.WriteCard(r.date, c, r.settings.Language); err != nil {
			o.logf("warning: writing report file for %s: %v", c.PaperID, err)
		}
	}
}

// forEach calls fn for 0..n-1 with at most Workers calls in flight.
func (o *Orchestrator) forEach(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func sortedIDs(items map[string]*item) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package identity

import (
	"context"
	"fmt"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// Lookup is the read side of the archive the resolver consults.
type Lookup interface {
	// LookupEntries returns the archived entries for the given canonical
	// ids. Ids that are not archived are absent from the map.
	LookupEntries(ctx context.Context, ids []string) (map[string]types.ArchiveEntry, error)

	// FindByTitleKey returns archived entries whose normalized title equals key.
	FindByTitleKey(ctx context.Context, key string) ([]types.ArchiveEntry, error)
}

// Candidate is the first sighting of a paper that is not yet archived.
type Candidate struct {
	CanonicalID string
	Kind        Kind
	Paper       types.Paper
	// Sightings counts how many fetched papers collapsed into this candidate.
	Sightings int
}

// Merge is a sighting of an already archived paper. Entry holds the
// archived record with the new sighting folded in.
type Merge struct {
	Entry     types.ArchiveEntry
	Changed   bool
	Sightings int
}

// Ambiguity records a title-only match that was not merged automatically.
type Ambiguity struct {
	CanonicalID string
	MatchedID   string
	Title       string
}

func (a Ambiguity) String() string {
	return fmt.Sprintf("identity ambiguity: %s matches %s by title %q; kept both", a.CanonicalID, a.MatchedID, a.Title)
}

// Resolution is the outcome of resolving one fetched batch.
type Resolution struct {
	New         []Candidate
	Merges      []Merge
	Ambiguities []Ambiguity
	// Dropped counts papers with neither an identifier nor a title.
	Dropped int
}

// Duplicates returns the number of fetched papers that did not produce a
// new candidate.
func (r Resolution) Duplicates() int {
	n := 0
	for _, m := range r.Merges {
		n += m.Sightings
	}
	for _, c := range r.New {
		n += c.Sightings - 1
	}
	return n
}

// Resolver maps fetched papers to canonical identities against the archive.
type Resolver struct {
	lookup Lookup
}

// NewResolver returns a resolver backed by the given archive lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve canonicalizes each paper, collapses duplicates within the batch,
// and splits the result into new candidates and merges into archived
// entries. Papers without any identifier are keyed by title; such a key
// never merges with an entry that has a real identifier, the pair is
// reported as an Ambiguity instead. Resolve never deletes anything.
func (r *Resolver) Resolve(ctx context.Context, papers []types.Paper) (Resolution, error) {
	var res Resolution

	index := make(map[string]int)
	var batch []Candidate

	for _, p := range papers {
		id, kind := Canonicalize(p.ID)
		if id == "" {
			id = TitleID(p.Title)
			kind = KindTitle
		}
		if id == "" {
			res.Dropped++
			continue
		}
		p.Link = Link(id, p.Link)

		if i, ok := index[id]; ok {
			mergePaper(&batch[i].Paper, p)
			batch[i].Sightings++
			continue
		}
		index[id] = len(batch)
		batch = append(batch, Candidate{CanonicalID: id, Kind: kind, Paper: p, Sightings: 1})
	}

	if len(batch) == 0 {
		return res, nil
	}

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.CanonicalID
	}
	existing, err := r.lookup.LookupEntries(ctx, ids)
	if err != nil {
		return Resolution{}, fmt.Errorf("looking up archived entries: %w", err)
	}

	for _, c := range batch {
		if entry, ok := existing[c.CanonicalID]; ok {
			changed := mergePaper(&entry.Paper, c.Paper)
			res.Merges = append(res.Merges, Merge{Entry: entry, Changed: changed, Sightings: c.Sightings})
			continue
		}

		amb, err := r.titleConflicts(ctx, c)
		if err != nil {
			return Resolution{}, err
		}
		res.Ambiguities = append(res.Ambiguities, amb...)
		res.New = append(res.New, c)
	}
	return res, nil
}

// titleConflicts reports archived entries that share the candidate's
// normalized title where at least one side is only title-keyed.
func (r *Resolver) titleConflicts(ctx context.Context, c Candidate) ([]Ambiguity, error) {
	key := TitleKey(c.Paper.Title)
	if key == "" {
		return nil, nil
	}
	matches, err := r.lookup.FindByTitleKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("matching title of %s: %w", c.CanonicalID, err)
	}
	var out []Ambiguity
	for _, m := range matches {
		if m.CanonicalID == c.CanonicalID {
			continue
		}
		if c.Kind != KindTitle && KindOf(m.CanonicalID) != KindTitle {
			continue
		}
		out = append(out, Ambiguity{CanonicalID: c.CanonicalID, MatchedID: m.CanonicalID, Title: c.Paper.Title})
	}
	return out, nil
}

// mergePaper folds src into dst: tags are unioned, and descriptive fields
// are filled only when dst lacks them. It reports whether dst changed.
func mergePaper(dst *types.Paper, src types.Paper) bool {
	changed := false
	fill := func(d *string, s string) {
		if *d == "" && s != "" {
			*d = s
			changed = true
		}
	}
	fill(&dst.Title, src.Title)
	fill(&dst.Venue, src.Venue)
	fill(&dst.Abstract, src.Abstract)
	fill(&dst.Link, src.Link)
	if dst.Date.IsZero() && !src.Date.IsZero() {
		dst.Date = src.Date
		changed = true
	}
	if len(dst.Authors) == 0 && len(src.Authors) > 0 {
		dst.Authors = src.Authors
		changed = true
	}

	tags, added := UnionTags(dst.Tags, src.Tags)
	if added {
		dst.Tags = tags
		changed = true
	}
	return changed
}

// UnionTags appends the tags of b missing from a, preserving order. It
// reports whether anything was added.
func UnionTags(a, b []string) ([]string, bool) {
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[t] = true
	}
	out := append([]string(nil), a...)
	added := false
	for _, t := range b {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		added = true
	}
	return out, added
}

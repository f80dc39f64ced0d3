// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package similarity derives relatedness between archived papers from their
// embeddings: the similarity graph over a bounded node set and the nearest
// neighbours of a single paper. Edges are computed on query and never
// stored.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/embedding"
	"github.com/pdiddy/paper-triage/pkg/types"
)

const (
	// DefaultLimit is the graph node limit when a query sets none.
	DefaultLimit = 200
	// MaxLimit caps the graph node count.
	MaxLimit = 1000
	// DefaultMinSimilarity filters weak related-paper neighbours.
	DefaultMinSimilarity = 0.3
	// cacheTTL is how long an obtained embedding stays in memory.
	cacheTTL = time.Hour
	// summaryChars bounds the report summary attached to a related paper.
	summaryChars = 220
)

// ErrNoEmbedding is returned by Related when the paper has no embedding and
// none can be obtained.
var ErrNoEmbedding = errors.New("no embedding available")

// ErrInvalidThreshold is returned by Graph for a NaN threshold or one
// above 1.
var ErrInvalidThreshold = errors.New("threshold must be a number at most 1")

// Source is the committed archive the engine reads.
type Source interface {
	GetEntry(ctx context.Context, id string) (types.ArchiveEntry, error)
	ListEntries(ctx context.Context, opts archive.ListOptions) ([]types.ArchiveEntry, error)
	UpdateEmbedding(ctx context.Context, id string, vec []float32, model string) error
}

// Engine answers similarity queries over committed archive entries.
type Engine struct {
	src      Source
	embedder embedding.Provider
	cache    *cache.Cache
	minSim   float64
	log      io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinSimilarity sets the related-paper similarity floor.
func WithMinSimilarity(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.minSim = clamp01(v)
		}
	}
}

// WithLog sets the writer receiving lazy-fill failures.
func WithLog(w io.Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.log = w
		}
	}
}

// NewEngine creates an engine. A nil embedder disables lazy filling; entries
// without a stored embedding then take no part in similarity.
func NewEngine(src Source, embedder embedding.Provider, opts ...Option) *Engine {
	e := &Engine{
		src:      src,
		embedder: embedder,
		cache:    cache.New(cacheTTL, 2*cacheTTL),
		minSim:   DefaultMinSimilarity,
		log:      io.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GraphQuery selects the graph node set.
type GraphQuery struct {
	Limit          int
	Threshold      float64
	SummarizedOnly bool
	Order          archive.Order
}

func (q GraphQuery) normalize() GraphQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Threshold < 0 {
		q.Threshold = 0
	}
	if q.Order != archive.OrderScore {
		q.Order = archive.OrderRecent
	}
	return q
}

// ValidThreshold reports whether v can be used as a graph threshold.
// Negative values are accepted and treated as 0.
func ValidThreshold(v float64) error {
	if math.IsNaN(v) || v > 1 {
		return fmt.Errorf("threshold %v: %w", v, ErrInvalidThreshold)
	}
	return nil
}

// Graph returns the candidate nodes and every edge among them whose
// similarity is at least the threshold. Similarities are rounded to four
// decimals before the comparison.
func (e *Engine) Graph(ctx context.Context, q GraphQuery) (types.Graph, error) {
	if err := ValidThreshold(q.Threshold); err != nil {
		return types.Graph{}, err
	}
	q = q.normalize()

	entries, err := e.src.ListEntries(ctx, archive.ListOptions{
		Limit:          q.Limit,
		SummarizedOnly: q.SummarizedOnly,
		Order:          q.Order,
	})
	if err != nil {
		return types.Graph{}, fmt.Errorf("selecting graph nodes: %w", err)
	}

	g := types.Graph{
		Nodes: make([]types.GraphNode, 0, len(entries)),
		Edges: []types.SimilarityEdge{},
	}
	vecs := make([][]float32, len(entries))
	for i := range entries {
		g.Nodes = append(g.Nodes, nodeFor(entries[i]))
		vecs[i] = e.vector(ctx, &entries[i])
	}

	for i := 0; i < len(entries); i++ {
		if len(vecs[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if len(vecs[j]) != len(vecs[i]) {
				continue
			}
			sim := round4(clamp01(Cosine(vecs[i], vecs[j])))
			if sim < q.Threshold {
				continue
			}
			g.Edges = append(g.Edges, types.SimilarityEdge{
				Source:     entries[i].CanonicalID,
				Target:     entries[j].CanonicalID,
				Similarity: sim,
				Weight:     round4(GaussianWeight(sim)),
			})
		}
	}
	return g, nil
}

// Related returns up to k nearest neighbours of the paper across the whole
// archive, excluding the paper itself and every id in exclude. Neighbours
// below the engine's similarity floor are dropped. Results are ordered by
// similarity descending, then by id.
func (e *Engine) Related(ctx context.Context, id string, k int, exclude map[string]bool) ([]types.RelatedPaper, error) {
	if k <= 0 {
		return nil, nil
	}
	target, err := e.src.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	tv := e.vector(ctx, &target)
	if len(tv) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrNoEmbedding)
	}

	all, err := e.src.ListEntries(ctx, archive.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	type scored struct {
		entry types.ArchiveEntry
		sim   float64
	}
	var cands []scored
	for i := range all {
		c := &all[i]
		if c.CanonicalID == id || exclude[c.CanonicalID] {
			continue
		}
		v := e.vector(ctx, c)
		if len(v) != len(tv) {
			continue
		}
		sim := round4(clamp01(Cosine(tv, v)))
		if sim < e.minSim {
			continue
		}
		cands = append(cands, scored{entry: *c, sim: sim})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		return cands[i].entry.CanonicalID < cands[j].entry.CanonicalID
	})
	if len(cands) > k {
		cands = cands[:k]
	}

	out := make([]types.RelatedPaper, len(cands))
	for i, c := range cands {
		out[i] = types.RelatedPaper{
			PaperID:    c.entry.CanonicalID,
			Title:      c.entry.Paper.Title,
			Venue:      c.entry.Paper.Venue,
			Date:       c.entry.Paper.DateString(),
			Link:       c.entry.Paper.Link,
			Similarity: c.sim,
			Summary:    truncate(c.entry.Report.Summary(), summaryChars),
		}
	}
	return out, nil
}

// Embed obtains an embedding for a paper that is not yet archived. It
// returns nil and an error when no embedder is configured.
func (e *Engine) Embed(ctx context.Context, p types.Paper) ([]float32, string, error) {
	if e.embedder == nil {
		return nil, "", fmt.Errorf("embedding %s: %w", p.ID, ErrNoEmbedding)
	}
	vec, err := e.embedder.Embed(ctx, embedding.Text(p))
	if err != nil {
		return nil, "", fmt.Errorf("embedding %s: %w", p.ID, err)
	}
	return vec, e.embedder.ModelName(), nil
}

// vector returns the entry's embedding, obtaining and storing it when
// missing or produced by a different model. It returns nil when none is
// available.
func (e *Engine) vector(ctx context.Context, entry *types.ArchiveEntry) []float32 {
	if e.embedder == nil {
		return entry.Embedding
	}
	model := e.embedder.ModelName()
	if len(entry.Embedding) > 0 && (entry.EmbeddingModel == "" || entry.EmbeddingModel == model) {
		return entry.Embedding
	}

	key := model + ":" + entry.CanonicalID
	if v, ok := e.cache.Get(key); ok {
		return v.([]float32)
	}

	vec, err := e.embedder.Embed(ctx, embedding.Text(entry.Paper))
	if err != nil {
		fmt.Fprintf(e.log, "embedding %s: %v\n", entry.CanonicalID, err)
		return nil
	}
	if err := e.src.UpdateEmbedding(ctx, entry.CanonicalID, vec, model); err != nil {
		fmt.Fprintf(e.log, "storing embedding %s: %v\n", entry.CanonicalID, err)
	}
	e.cache.Set(key, vec, cache.DefaultExpiration)
	entry.Embedding = vec
	entry.EmbeddingModel = model
	return vec
}

func nodeFor(e types.ArchiveEntry) types.GraphNode {
	group := "Other"
	if parts := strings.Fields(e.Paper.Venue); len(parts) > 0 {
		group = parts[0]
	}
	return types.GraphNode{
		ID:         e.CanonicalID,
		Title:      e.Paper.Title,
		Venue:      e.Paper.Venue,
		Date:       e.Paper.DateString(),
		Link:       e.Paper.Link,
		Group:      group,
		Summarized: e.Summarized(),
	}
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

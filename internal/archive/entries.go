// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

const entryColumns = `canonical_id, raw_id, title, venue, authors, pub_date, link, abstract,
	tags, source, score, report, embedding, embedding_model, first_seen_run_date, stored_at`

// lookupBatch bounds the number of bound parameters per IN query.
const lookupBatch = 500

// Order selects how ListEntries sorts candidates.
type Order string

const (
	// OrderRecent sorts by first-seen run date, newest first, then by total score.
	OrderRecent Order = "recent"
	// OrderScore sorts by total score, highest first, then by first-seen run date.
	OrderScore Order = "score"
)

// ListOptions filters and bounds ListEntries.
type ListOptions struct {
	// Limit caps the number of entries (0 = no limit).
	Limit          int
	SummarizedOnly bool
	Order          Order
	// RunDate restricts the listing to entries first seen on that date.
	RunDate string
	// WithoutEmbedding restricts the listing to entries lacking an embedding.
	WithoutEmbedding bool
}

// upsertEntry writes the full entry, replacing any existing row.
func upsertEntry(ctx context.Context, ex execer, e types.ArchiveEntry) error {
	if e.CanonicalID == "" {
		return fmt.Errorf("entry has no canonical id")
	}
	authorsJSON, _ := json.Marshal(e.Paper.Authors)
	tagsJSON, _ := json.Marshal(e.Paper.Tags)

	var scoreJSON, reportJSON sql.NullString
	var total sql.NullFloat64
	if e.Score != nil {
		data, err := json.Marshal(e.Score)
		if err != nil {
			return fmt.Errorf("marshaling score: %w", err)
		}
		scoreJSON = sql.NullString{String: string(data), Valid: true}
		total = sql.NullFloat64{Float64: e.Score.Total, Valid: true}
	}
	if !e.Report.IsEmpty() {
		data, err := json.Marshal(e.Report)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		reportJSON = sql.NullString{String: string(data), Valid: true}
	}

	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO entries (canonical_id, raw_id, title, title_key, venue, authors, pub_date, link,
			abstract, tags, source, score, total, report, summarized, embedding, embedding_model,
			first_seen_run_date, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(canonical_id) DO UPDATE SET
			raw_id=excluded.raw_id, title=excluded.title, title_key=excluded.title_key,
			venue=excluded.venue, authors=excluded.authors, pub_date=excluded.pub_date,
			link=excluded.link, abstract=excluded.abstract, tags=excluded.tags,
			source=excluded.source, score=excluded.score, total=excluded.total,
			report=excluded.report, summarized=excluded.summarized,
			embedding=COALESCE(excluded.embedding, entries.embedding),
			embedding_model=COALESCE(excluded.embedding_model, entries.embedding_model)`,
		e.CanonicalID, e.Paper.ID, e.Paper.Title, identity.TitleKey(e.Paper.Title), e.Paper.Venue,
		string(authorsJSON), e.Paper.DateString(), e.Paper.Link, e.Paper.Abstract,
		string(tagsJSON), e.Paper.Source, scoreJSON, total, reportJSON, boolInt(reportJSON.Valid),
		encodeEmbedding(e.Embedding), nullString(e.EmbeddingModel),
		e.FirstSeenRunDate, storedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting entry %s: %w", e.CanonicalID, err)
	}
	return nil
}

// SaveEntry inserts or replaces a single entry. An entry saved without an
// embedding keeps the embedding already stored.
func (s *Store) SaveEntry(ctx context.Context, e types.ArchiveEntry) error {
	return upsertEntry(ctx, s.db, e)
}

// GetEntry returns the entry with the given canonical id.
func (s *Store) GetEntry(ctx context.Context, id string) (types.ArchiveEntry, error) {
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, ex execer, id string) (types.ArchiveEntry, error) {
	row := ex.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE canonical_id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ArchiveEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

// LookupEntries returns the archived entries for the given ids, keyed by
// canonical id. Missing ids are absent from the result.
func (s *Store) LookupEntries(ctx context.Context, ids []string) (map[string]types.ArchiveEntry, error) {
	out := make(map[string]types.ArchiveEntry, len(ids))
	for start := 0; start < len(ids); start += lookupBatch {
		end := min(start+lookupBatch, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := s.db.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM entries WHERE canonical_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("looking up entries: %w", err)
		}
		entries, err := scanEntries(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out[e.CanonicalID] = e
		}
	}
	return out, nil
}

// FindByTitleKey returns entries whose normalized title equals key.
func (s *Store) FindByTitleKey(ctx context.Context, key string) ([]types.ArchiveEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE title_key = ? ORDER BY canonical_id`, key)
	if err != nil {
		return nil, fmt.Errorf("finding entries by title: %w", err)
	}
	return scanEntries(rows)
}

// ListEntries returns committed entries filtered and ordered by opts.
func (s *Store) ListEntries(ctx context.Context, opts ListOptions) ([]types.ArchiveEntry, error) {
	var b strings.Builder
	var args []any

	b.WriteString(`SELECT ` + entryColumns + ` FROM entries`)

	var where []string
	if opts.SummarizedOnly {
		where = append(where, `summarized = 1`)
	}
	if opts.RunDate != "" {
		where = append(where, `first_seen_run_date = ?`)
		args = append(args, opts.RunDate)
	}
	if opts.WithoutEmbedding {
		where = append(where, `embedding IS NULL`)
	}
	if len(where) > 0 {
		b.WriteString(` WHERE ` + strings.Join(where, " AND "))
	}

	switch opts.Order {
	case OrderScore:
		b.WriteString(` ORDER BY COALESCE(total, -1) DESC, first_seen_run_date DESC, canonical_id ASC`)
	default:
		b.WriteString(` ORDER BY first_seen_run_date DESC, COALESCE(total, -1) DESC, canonical_id ASC`)
	}

	if opts.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return scanEntries(rows)
}

// CountEntries returns the number of archived entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// UpdateEmbedding stores the embedding vector for an entry.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET embedding = ?, embedding_model = ? WHERE canonical_id = ?`,
		encodeEmbedding(vec), model, id)
	if err != nil {
		return fmt.Errorf("updating embedding for %s: %w", id, err)
	}
	return requireAffected(res, "entry "+id)
}

// SetReport stores the report for an entry. A nil or empty report clears it.
func (s *Store) SetReport(ctx context.Context, id string, r *types.Report) error {
	var reportJSON sql.NullString
	if !r.IsEmpty() {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		reportJSON = sql.NullString{String: string(data), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET report = ?, summarized = ? WHERE canonical_id = ?`,
		reportJSON, boolInt(reportJSON.Valid), id)
	if err != nil {
		return fmt.Errorf("updating report for %s: %w", id, err)
	}
	return requireAffected(res, "entry "+id)
}

// ClearReport removes the report from an entry so it leaves the
// summarized-only views.
func (s *Store) ClearReport(ctx context.Context, id string) error {
	return s.SetReport(ctx, id, nil)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (types.ArchiveEntry, error) {
	var (
		e                                            types.ArchiveEntry
		rawID, venue, authors, pubDate, link         sql.NullString
		abstract, tags, source, score, report, model sql.NullString
		embedding                                    []byte
		storedAt                                     string
	)
	err := row.Scan(&e.CanonicalID, &rawID, &e.Paper.Title, &venue, &authors, &pubDate, &link,
		&abstract, &tags, &source, &score, &report, &embedding, &model,
		&e.FirstSeenRunDate, &storedAt)
	if err != nil {
		return types.ArchiveEntry{}, err
	}

	e.Paper.ID = rawID.String
	e.Paper.Venue = venue.String
	e.Paper.Link = link.String
	e.Paper.Abstract = abstract.String
	e.Paper.Source = source.String
	e.EmbeddingModel = model.String
	if authors.Valid && authors.String != "" {
		_ = json.Unmarshal([]byte(authors.String), &e.Paper.Authors)
	}
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &e.Paper.Tags)
	}
	if pubDate.String != "" {
		if t, err := time.Parse(types.DateLayout, pubDate.String); err == nil {
			e.Paper.Date = t
		}
	}
	if score.Valid {
		var sr types.ScoreRecord
		if err := json.Unmarshal([]byte(score.String), &sr); err != nil {
			return types.ArchiveEntry{}, fmt.Errorf("decoding score of %s: %w", e.CanonicalID, err)
		}
		e.Score = &sr
	}
	if report.Valid {
		var r types.Report
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return types.ArchiveEntry{}, fmt.Errorf("decoding report of %s: %w", e.CanonicalID, err)
		}
		e.Report = &r
	}
	e.Embedding = decodeEmbedding(embedding)
	if t, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
		e.StoredAt = t
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]types.ArchiveEntry, error) {
	defer rows.Close()
	var out []types.ArchiveEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// encodeEmbedding packs a vector as little-endian float32 values. A nil
// vector encodes as SQL NULL.
func encodeEmbedding(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

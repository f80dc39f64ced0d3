// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// ErrCardNotFound is returned by PromoteCard when the paper is in neither
// tier of the run.
var ErrCardNotFound = errors.New("paper not listed in run")

// Commit is the archive mutation produced by one pipeline run.
type Commit struct {
	// New holds first sightings, written as new entries.
	New []types.ArchiveEntry
	// Merged holds archived entries updated with new sightings.
	Merged []types.ArchiveEntry
}

// CommitRun writes all new and merged entries of a run in one transaction.
// Either every entry is written or none is.
func (s *Store) CommitRun(ctx context.Context, c Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range c.New {
		if err := upsertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range c.Merged {
		if err := upsertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// SaveRun inserts the run record, replacing any record for the same date.
func (s *Store) SaveRun(ctx context.Context, rec types.RunRecord) error {
	return saveRun(ctx, s.db, rec)
}

func saveRun(ctx context.Context, ex execer, rec types.RunRecord) error {
	if rec.RunDate == "" {
		return fmt.Errorf("run record has no date")
	}
	deepJSON, err := json.Marshal(nonNilCards(rec.DeepReads))
	if err != nil {
		return fmt.Errorf("marshaling deep reads: %w", err)
	}
	notableJSON, err := json.Marshal(nonNilCards(rec.AlsoNotable))
	if err != nil {
		return fmt.Errorf("marshaling also notable: %w", err)
	}
	logs := rec.Logs
	if logs == nil {
		logs = []string{}
	}
	logsJSON, _ := json.Marshal(logs)

	_, err = ex.ExecContext(ctx,
		`INSERT INTO runs (run_date, run_id, status, total_count, deep_reads, also_notable, digest, logs, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_date) DO UPDATE SET
			run_id=excluded.run_id, status=excluded.status, total_count=excluded.total_count,
			deep_reads=excluded.deep_reads, also_notable=excluded.also_notable,
			digest=excluded.digest, logs=excluded.logs, error=excluded.error,
			started_at=excluded.started_at, finished_at=excluded.finished_at`,
		rec.RunDate, rec.RunID, string(rec.Status), rec.TotalCount,
		string(deepJSON), string(notableJSON), rec.Digest, string(logsJSON), rec.Error,
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.RunDate, err)
	}
	return nil
}

// GetRun returns the run record for a date.
func (s *Store) GetRun(ctx context.Context, date string) (types.RunRecord, error) {
	return getRun(ctx, s.db, date)
}

func getRun(ctx context.Context, ex execer, date string) (types.RunRecord, error) {
	var (
		rec                                  types.RunRecord
		status                               string
		deep, notable, digest, logs, errText sql.NullString
		startedAt, finishedAt                sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT run_date, run_id, status, total_count, deep_reads, also_notable, digest, logs, error, started_at, finished_at
		 FROM runs WHERE run_date = ?`, date,
	).Scan(&rec.RunDate, &rec.RunID, &status, &rec.TotalCount, &deep, &notable, &digest, &logs, &errText, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunRecord{}, fmt.Errorf("run %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("loading run %s: %w", date, err)
	}

	rec.Status = types.RunStatus(status)
	rec.Digest = digest.String
	rec.Error = errText.String
	rec.StartedAt = parseTime(startedAt.String)
	rec.FinishedAt = parseTime(finishedAt.String)
	if err := unmarshalNullable(deep, &rec.DeepReads); err != nil {
		return types.RunRecord{}, fmt.Errorf("decoding deep reads of %s: %w", date, err)
	}
	if err := unmarshalNullable(notable, &rec.AlsoNotable); err != nil {
		return types.RunRecord{}, fmt.Errorf("decoding also notable of %s: %w", date, err)
	}
	if err := unmarshalNullable(logs, &rec.Logs); err != nil {
		return types.RunRecord{}, fmt.Errorf("decoding logs of %s: %w", date, err)
	}
	return rec, nil
}

// HasRun reports whether a run record exists for the date.
func (s *Store) HasRun(ctx context.Context, date string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs WHERE run_date = ?`, date).Scan(&n); err != nil {
		return false, fmt.Errorf("checking run %s: %w", date, err)
	}
	return n > 0, nil
}

// ListRuns returns a summary of every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]types.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_date, status, total_count, deep_reads, also_notable, finished_at FROM runs ORDER BY run_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []types.RunSummary
	for rows.Next() {
		var (
			sum                       types.RunSummary
			status                    string
			deep, notable, finishedAt sql.NullString
		)
		if err := rows.Scan(&sum.RunDate, &status, &sum.TotalCount, &deep, &notable, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		var deepCards, notableCards []types.Card
		_ = unmarshalNullable(deep, &deepCards)
		_ = unmarshalNullable(notable, &notableCards)
		sum.Status = types.RunStatus(status)
		sum.DeepReads = len(deepCards)
		sum.AlsoNotable = len(notableCards)
		sum.FinishedAt = parseTime(finishedAt.String)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteResult reports what DeleteRun removed.
type DeleteResult struct {
	Runs    int `json:"runs"`
	Entries int `json:"entries"`
}

// DeleteRun removes the run record for a date. With purgeEntries it also
// removes the archive entries first seen on that date, in the same
// transaction.
func (s *Store) DeleteRun(ctx context.Context, date string, purgeEntries bool) (DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var out DeleteResult
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_date = ?`, date)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("deleting run %s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	out.Runs = int(n)

	if purgeEntries {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE first_seen_run_date = ?`, date)
		if err != nil {
			return DeleteResult{}, fmt.Errorf("deleting entries of %s: %w", date, err)
		}
		n, _ := res.RowsAffected()
		out.Entries = int(n)
	}

	if out.Runs == 0 && out.Entries == 0 {
		return out, fmt.Errorf("run %s: %w", date, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return DeleteResult{}, fmt.Errorf("committing delete: %w", err)
	}
	return out, nil
}

// IncrementStarts records one more pipeline start for the date and returns
// the new count.
func (s *Store) IncrementStarts(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO run_starts (run_date, starts) VALUES (?, 1)
		 ON CONFLICT(run_date) DO UPDATE SET starts = starts + 1
		 RETURNING starts`, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("recording start for %s: %w", date, err)
	}
	return n, nil
}

// StartCount returns the number of pipeline starts recorded for the date.
func (s *Store) StartCount(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT starts FROM run_starts WHERE run_date = ?`, date).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading start count for %s: %w", date, err)
	}
	return n, nil
}

// PromoteCard moves a paper from the run's also-notable tier to its deep
// reads and stores the entry's score and report in one transaction. It
// returns false without changes when the paper is already a deep read.
func (s *Store) PromoteCard(ctx context.Context, date string, entry types.ArchiveEntry, card types.Card) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := getRun(ctx, tx, date)
	if err != nil {
		return false, err
	}
	for _, c := range rec.DeepReads {
		if c.PaperID == card.PaperID {
			return false, nil
		}
	}

	idx := -1
	for i, c := range rec.AlsoNotable {
		if c.PaperID == card.PaperID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("%s in run %s: %w", card.PaperID, date, ErrCardNotFound)
	}

	rec.AlsoNotable = append(rec.AlsoNotable[:idx:idx], rec.AlsoNotable[idx+1:]...)
	rec.DeepReads = append(rec.DeepReads, card)

	// Only the score and report come from the caller; the rest of the row
	// is re-read so changes committed since the caller loaded it survive.
	stored, err := getEntry(ctx, tx, entry.CanonicalID)
	switch {
	case errors.Is(err, ErrNotFound):
		stored = entry
	case err != nil:
		return false, err
	default:
		if entry.Score != nil {
			stored.Score = entry.Score
		}
		if !entry.Report.IsEmpty() {
			stored.Report = entry.Report
		}
	}
	if err := upsertEntry(ctx, tx, stored); err != nil {
		return false, err
	}
	if err := saveRun(ctx, tx, rec); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing promotion: %w", err)
	}
	return true, nil
}

func nonNilCards(cards []types.Card) []types.Card {
	if cards == nil {
		return []types.Card{}
	}
	return cards
}

func unmarshalNullable(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the daily triage: fetch, resolve, score, rank,
// write reports, archive, link related papers and deliver the digest.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/fetch"
	"github.com/pdiddy/paper-triage/internal/notify"
	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/internal/scorer"
	"github.com/pdiddy/paper-triage/internal/similarity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// FullTextSource returns a local document holding a paper's full text.
type FullTextSource interface {
	Acquire(ctx context.Context, canonicalID string, p types.Paper) (string, error)
}

// Deps are the collaborators of an orchestrator. Similarity, Files,
// Notifier and FullText are optional.
type Deps struct {
	Store   *archive.Store
	Fetcher fetch.Fetcher

	// NewScorer builds the scorer for a run's settings; the rubric
	// depends on the reader's fields.
	NewScorer func(types.Settings) scorer.Scorer

	// NewGenerator builds the report generator for a language.
	NewGenerator func(language string) report.Generator

	Similarity *similarity.Engine
	Files      *report.Files
	Notifier   notify.Notifier

	// FullText supplies a local PDF for report generation. Optional.
	FullText FullTextSource

	// Log receives every progress line. Defaults to io.Discard.
	Log io.Writer
}

// Options tune an orchestrator.
type Options struct {
	// Workers bounds concurrent scoring, report and embedding calls.
	Workers int
	// Location determines the calendar date of a run.
	Location *time.Location
	// BetaDailyLimit caps starts per date regardless of force; 0 disables.
	BetaDailyLimit int
	// RelatedK is the number of related papers attached to a deep read.
	RelatedK int
	// Settings fill in what a start request leaves empty and drive promotion.
	Settings types.Settings
	Now      func() time.Time
}

// OptionsFromConfig derives orchestrator options from configuration.
func OptionsFromConfig(cfg types.Config) (Options, error) {
	tz := cfg.Pipeline.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Options{}, fmt.Errorf("loading timezone %q: %w", tz, err)
	}
	return Options{
		Workers:        cfg.Pipeline.Workers,
		Location:       loc,
		BetaDailyLimit: cfg.Pipeline.BetaDailyLimit,
		RelatedK:       cfg.Pipeline.RelatedK,
		Settings:       cfg.Settings,
	}, nil
}

// StartRequest asks for a pipeline run. Settings left unset keep the
// orchestrator's configured values.
type StartRequest struct {
	Settings types.SettingsOverride `json:"settings"`
	Force    bool           `json:"force"`
}

// StartResult reports whether a run started. A rejection carries a reason
// and is not an error.
type StartResult struct {
	Started bool   `json:"started"`
	Reason  Reason `json:"reason,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Snapshot is a copy of the orchestrator's state for status polling.
type Snapshot struct {
	Status     types.RunStatus `json:"status"`
	Logs       []string        `json:"logs"`
	Date       string          `json:"date,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	Total      int             `json:"total"`
	Reports    int             `json:"reports"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Orchestrator coordinates pipeline runs. At most one run executes at a
// time; concurrent start requests are rejected, never queued.
type Orchestrator struct {
	deps Deps
	opts Options
	log  io.Writer

	// startMu serializes the start guards so that check and transition
	// are atomic.
	startMu sync.Mutex

	mu    sync.RWMutex
	state Snapshot

	wg sync.WaitGroup

	locksMu sync.Mutex
	locks   map[string]*paperMutex
}

// New creates an orchestrator. Zero options take the defaults.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RelatedK <= 0 {
		opts.RelatedK = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	defaults := types.DefaultSettings()
	if opts.Settings.DateWindowDays <= 0 {
		opts.Settings.DateWindowDays = defaults.DateWindowDays
	}
	if opts.Settings.MaxReports <= 0 {
		opts.Settings.MaxReports = defaults.MaxReports
	}
	if opts.Settings.Language == "" {
		opts.Settings.Language = defaults.Language
	}

	log := deps.Log
	if log == nil {
		log = io.Discard
	}
	return &Orchestrator{
		deps:  deps,
		opts:  opts,
		log:   log,
		state: Snapshot{Status: types.RunIdle, Logs: []string{}},
		locks: make(map[string]*paperMutex),
	}
}

// Today returns the current calendar date in the configured timezone.
func (o *Orchestrator) Today() string {
	return o.opts.Now().In(o.opts.Location).Format(types.DateLayout)
}

// Status returns a copy of the current state. It never waits on a
// running pipeline.
func (o *Orchestrator) Status() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.state
	s.Logs = append([]string(nil), o.state.Logs...)
	return s
}

// Wait blocks until the background run, if any, has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

type run struct {
	id       string
	date     string
	settings types.Settings
	force    bool
	started  time.Time
}

// Start applies the start guards and launches the pipeline in the
// background. An accepted run is pending until the pipeline begins. The returned error is reserved for archive failures while
// checking the guards.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	res, r, err := o.begin(ctx, req)
	if err != nil || !res.Started {
		return res, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(context.WithoutCancel(ctx), r)
	}()
	return res, nil
}

// RunSync applies the same guards as Start and runs the pipeline in the
// calling goroutine. On a rejection the record is empty and err is nil.
func (o *Orchestrator) RunSync(ctx context.Context, req StartRequest) (StartResult, types.RunRecord, error) {
	res, r, err := o.begin(ctx, req)
	if err != nil || !res.Started {
		return res, types.RunRecord{}, err
	}
	rec, err := o.execute(ctx, r)
	return res, rec, err
}

func (o *Orchestrator) begin(ctx context.Context, req StartRequest) (StartResult, *run, error) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.RLock()
	active := o.state.Status == types.RunPending || o.state.Status == types.RunRunning
	o.mu.RUnlock()
	if active {
		return StartResult{Reason: ReasonAlreadyRunning}, nil, nil
	}

	now := o.opts.Now()
	date := now.In(o.opts.Location).Format(types.DateLayout)

	if o.opts.BetaDailyLimit > 0 {
		n, err := o.deps.Store.StartCount(ctx, date)
		if err != nil {
			return StartResult{}, nil, &PersistenceError{Op: "read start count", Err: err}
		}
		if n >= o.opts.BetaDailyLimit {
			return StartResult{Reason: ReasonBetaDailyLimit, Date: date}, nil, nil
		}
	}

	if !req.Force {
		exists, err := o.deps.Store.HasRun(ctx, date)
		if err != nil {
			return StartResult{}, nil, &PersistenceError{Op: "read run", Err: err}
		}
		if exists {
			return StartResult{Reason: ReasonAlreadyRunToday, Date: date}, nil, nil
		}
	}

	if _, err := o.deps.Store.IncrementStarts(ctx, date); err != nil {
		return StartResult{}, nil, &PersistenceError{Op: "record start", Err: err}
	}

	r := &run{
		id:       uuid.NewString(),
		date:     date,
		settings: o.withDefaults(req.Settings),
		force:    req.Force,
		started:  now,
	}

	o.mu.Lock()
	o.state = Snapshot{
		Status:    types.RunPending,
		Logs:      []string{},
		Date:      date,
		RunID:     r.id,
		StartedAt: &r.started,
	}
	o.mu.Unlock()

	return StartResult{Started: true, Date: date}, r, nil
}

// withDefaults overlays the request on the configured settings and fills
// what is still empty.
func (o *Orchestrator) withDefaults(req types.SettingsOverride) types.Settings {
	s := req.Apply(o.opts.Settings)
	if s.DateWindowDays <= 0 {
		s.DateWindowDays = o.opts.Settings.DateWindowDays
	}
	if s.MaxReports <= 0 {
		s.MaxReports = o.opts.Settings.MaxReports
	}
	if s.Language == "" {
		s.Language = o.opts.Settings.Language
	}
	if len(s.Fields) == 0 {
		s.Fields = o.opts.Settings.Fields
	}
	if len(s.Journals) == 0 {
		s.Journals = o.opts.Settings.Journals
	}
	return s
}

// execute runs the pipeline, persists its outcome and publishes the final
// state.
func (o *Orchestrator) execute(ctx context.Context, r *run) (types.RunRecord, error) {
	o.update(func(s *Snapshot) { s.Status = types.RunRunning })
	o.logf("starting run %s for %s", r.id, r.date)

	rec, err := o.pipeline(ctx, r)
	finished := o.opts.Now()
	rec.FinishedAt = finished

	if err != nil {
		o.logf("run failed: %v", err)
		rec.Status = types.RunError
		rec.Error = err.Error()
		rec.Logs = o.Status().Logs
		if saveErr := o.deps.Store.SaveRun(ctx, rec); saveErr != nil {
			o.logf("warning: could not persist failed run: %v", saveErr)
		}
	}

	o.mu.Lock()
	o.state.Status = rec.Status
	o.state.FinishedAt = &finished
	o.state.Reports = len(rec.DeepReads)
	o.state.Error = rec.Error
	o.mu.Unlock()
	return rec, err
}

// logf appends a line to the run log and writes it to the log writer.
func (o *Orchestrator) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	o.mu.Lock()
	o.state.Logs = append(o.state.Logs, line)
	o.mu.Unlock()
	fmt.Fprintln(o.log, strings.TrimRight(line, "\n"))
}

func (o *Orchestrator) update(fn func(*Snapshot)) {
	o.mu.Lock()
	fn(&o.state)
	o.mu.Unlock()
}

type paperMutex struct {
	sync.Mutex
	refs int
}

// lockPaper takes the lock guarding promotions of one paper and returns
// its release. The entry leaves the map once no caller holds or waits on it.
func (o *Orchestrator) lockPaper(id string) (unlock func()) {
	o.locksMu.Lock()
	m, ok := o.locks[id]
	if !ok {
		m = &paperMutex{}
		o.locks[id] = m
	}
	m.refs++
	o.locksMu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		o.locksMu.Lock()
		if m.refs--; m.refs == 0 {
			delete(o.locks, id)
		}
		o.locksMu.Unlock()
	}
}

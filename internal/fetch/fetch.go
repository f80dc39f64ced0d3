// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves newly published papers from the configured
// backends and normalizes them into types.Paper.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// Request selects the papers of one run.
type Request struct {
	Journals       []string
	Fields         []string
	DateWindowDays int
	// Until is the end of the date window; zero means now.
	Until time.Time
}

// Window returns the inclusive start and end of the publication window.
func (r Request) Window() (time.Time, time.Time) {
	until := r.Until
	if until.IsZero() {
		until = time.Now()
	}
	days := r.DateWindowDays
	if days <= 0 {
		days = 1
	}
	return until.AddDate(0, 0, -days), until
}

// Fetcher returns the papers matching a request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]types.Paper, error)
}

// Backend is one paper source.
type Backend interface {
	Fetcher
	Name() string
}

// ErrNoBackends is returned when no backend is configured.
var ErrNoBackends = errors.New("no fetch backends configured")

// Multi fans a request out to several backends concurrently. A failing
// backend is reported on the log writer; Multi fails only when every
// backend fails.
type Multi struct {
	Backends []Backend
	Log      io.Writer
}

// Fetch queries all backends and concatenates their papers in backend
// order. Duplicates across backends are left for the resolver.
func (m *Multi) Fetch(ctx context.Context, req Request) ([]types.Paper, error) {
	if len(m.Backends) == 0 {
		return nil, ErrNoBackends
	}
	log := m.Log
	if log == nil {
		log = io.Discard
	}

	type result struct {
		papers []types.Paper
		err    error
	}
	results := make([]result, len(m.Backends))

	var wg sync.WaitGroup
	for i, b := range m.Backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			papers, err := b.Fetch(ctx, req)
			results[i] = result{papers: papers, err: err}
		}(i, b)
	}
	wg.Wait()

	var all []types.Paper
	var errs []error
	for i, r := range results {
		name := m.Backends[i].Name()
		if r.err != nil {
			fmt.Fprintf(log, "warning: backend %s failed: %v\n", name, r.err)
			errs = append(errs, fmt.Errorf("%s: %w", name, r.err))
			continue
		}
		for _, p := range r.papers {
			if p.Source == "" {
				p.Source = name
			}
			all = append(all, p)
		}
	}
	if len(errs) == len(m.Backends) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

// New builds a Multi fetcher from configuration.
func New(cfg types.FetchConfig, log io.Writer) (*Multi, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	m := &Multi{Log: log}
	for _, name := range cfg.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "arxiv":
			m.Backends = append(m.Backends, &ArxivBackend{Client: client, UserAgent: cfg.UserAgent, MaxResults: cfg.MaxResults})
		case "openalex":
			m.Backends = append(m.Backends, &OpenAlexBackend{Client: client, UserAgent: cfg.UserAgent, MaxResults: cfg.MaxResults, Email: cfg.OpenAlexEmail})
		case "file":
			if cfg.PapersFile == "" {
				return nil, fmt.Errorf("file backend requires fetch.papers_file")
			}
			m.Backends = append(m.Backends, &FileBackend{Path: cfg.PapersFile})
		default:
			return nil, fmt.Errorf("unknown fetch backend %q (supported: arxiv, openalex, file)", name)
		}
	}
	if len(m.Backends) == 0 {
		return nil, ErrNoBackends
	}
	return m, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"fmt"
)

// Reason explains why a start request was rejected.
type Reason string

const (
	ReasonAlreadyRunning  Reason = "already_running"
	ReasonAlreadyRunToday Reason = "already_run_today"
	ReasonBetaDailyLimit  Reason = "beta_daily_limit"
)

// ErrNotNotable is returned by Promote when the paper is not in the run's
// also-notable tier.
var ErrNotNotable = errors.New("paper is not listed as also notable")

// FetchError aborts a run when the paper-fetch service fails.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetching papers: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError aborts a run when the archive cannot be read or written.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("archive %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

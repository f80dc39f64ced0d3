// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scorer rates papers against a fixed rubric through a model
// provider. A paper that cannot be scored yields ErrScoreUnavailable and is
// left out of ranking for the run.
package scorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/paper-triage/internal/llm"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// Scorer rates one paper. Implementations must be safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, p types.Paper) (types.ScoreRecord, error)
}

// ErrScoreUnavailable matches every UnavailableError through errors.Is.
var ErrScoreUnavailable = errors.New("score unavailable")

// Reason says why a score could not be obtained.
type Reason string

const (
	ReasonQuota     Reason = "quota"
	ReasonTimeout   Reason = "timeout"
	ReasonMalformed Reason = "malformed"
	ReasonProvider  Reason = "provider"
)

// UnavailableError is returned when the oracle fails for a paper.
type UnavailableError struct {
	PaperID string
	Reason  Reason
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("score unavailable for %s (%s): %v", e.PaperID, e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrScoreUnavailable) hold for every UnavailableError.
func (e *UnavailableError) Is(target error) bool { return target == ErrScoreUnavailable }

// Retryable reports whether repeating the call may succeed. Quota
// failures are final; a malformed reply may be fixed by sampling again.
func (e *UnavailableError) Retryable() bool {
	switch e.Reason {
	case ReasonQuota:
		return false
	case ReasonTimeout, ReasonMalformed:
		return true
	}
	return llm.Classify(e.Err).Retryable()
}

// unavailable wraps a provider error, deriving the reason from its class.
func unavailable(paperID string, err error) *UnavailableError {
	reason := ReasonProvider
	switch llm.Classify(err) {
	case llm.ErrorQuota:
		reason = ReasonQuota
	case llm.ErrorTimeout:
		reason = ReasonTimeout
	}
	return &UnavailableError{PaperID: paperID, Reason: reason, Err: err}
}

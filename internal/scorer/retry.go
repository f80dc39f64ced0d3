// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

type retrying struct {
	next       Scorer
	maxRetries int
}

// WithRetry wraps s so failed calls are repeated up to maxRetries times with
// exponential backoff. Errors that are not retryable return immediately.
func WithRetry(s Scorer, maxRetries int) Scorer {
	if maxRetries <= 0 {
		return s
	}
	return &retrying{next: s, maxRetries: maxRetries}
}

func (r *retrying) Score(ctx context.Context, p types.Paper) (types.ScoreRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return types.ScoreRecord{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		rec, err := r.next.Score(ctx, p)
		if err == nil {
			return rec, nil
		}
		lastErr = err

		var ue *UnavailableError
		if errors.As(err, &ue) && !ue.Retryable() {
			return types.ScoreRecord{}, err
		}
	}
	return types.ScoreRecord{}, fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}

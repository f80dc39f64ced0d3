// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scorer

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/internal/llm"
	"github.com/pdiddy/paper-triage/pkg/types"
)

func TestMain(m *testing.M) {
	backoffBase = time.Millisecond
	os.Exit(m.Run())
}

// --- fakes ---

type fakeClient struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []llm.Request
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.Response{}, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	} else if len(f.replies) > 0 {
		reply = f.replies[len(f.replies)-1]
	}
	return llm.Response{Text: reply, Model: "fake-model"}, nil
}

type scriptedScorer struct {
	errs  []error
	calls int
}

func (s *scriptedScorer) Score(_ context.Context, p types.Paper) (types.ScoreRecord, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return types.ScoreRecord{}, s.errs[i]
	}
	return types.ScoreRecord{Relevance: 80, Total: 80}, nil
}

var paper = types.Paper{ID: "doi:10.1/x", Title: "Sparse attention", Venue: "Nature", Abstract: "We study attention."}

// --- LLMScorer ---

func TestLLMScorer_Score(t *testing.T) {
	client := &fakeClient{replies: []string{"```json\n{\"relevance\": 90, \"novelty\": 80, \"rigor\": 70, \"impact\": 60, \"rationale\": \" fits \"}\n```"}}
	s := NewLLMScorer(client, nil, []string{"machine learning", "biology"})

	rec, err := s.Score(context.Background(), paper)
	require.NoError(t, err)
	assert.Equal(t, 90.0, rec.Relevance)
	assert.Equal(t, 60.0, rec.Impact)
	assert.Equal(t, "fits", rec.Rationale)
	assert.Equal(t, "fake-model", rec.Model)
	// 0.40*90 + 0.25*80 + 0.15*70 + 0.20*60 = 78.5
	assert.InDelta(t, 78.5, rec.Total, 1e-9)

	require.Len(t, client.prompts, 1)
	req := client.prompts[0]
	assert.True(t, req.JSON)
	assert.Contains(t, req.Prompt, "machine learning, biology")
	assert.Contains(t, req.Prompt, "Title: Sparse attention")
	assert.Contains(t, req.Prompt, "Abstract: We study attention.")
}

func TestLLMScorer_ClampsOutOfRange(t *testing.T) {
	client := &fakeClient{replies: []string{`{"relevance": 140, "novelty": -5, "rigor": 50, "impact": 50}`}}
	s := NewLLMScorer(client, Mean, nil)

	rec, err := s.Score(context.Background(), paper)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.Relevance)
	assert.Equal(t, 0.0, rec.Novelty)
	assert.Equal(t, 50.0, rec.Total)
}

func TestLLMScorer_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "prose", reply: "I think it is great"},
		{name: "missing dimension", reply: `{"relevance": 10, "novelty": 10, "rigor": 10}`},
		{name: "wrong type", reply: `{"relevance": "high", "novelty": 1, "rigor": 1, "impact": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLLMScorer(&fakeClient{replies: []string{tt.reply}}, nil, nil)
			_, err := s.Score(context.Background(), paper)
			require.ErrorIs(t, err, ErrScoreUnavailable)
			var ue *UnavailableError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, ReasonMalformed, ue.Reason)
			assert.Equal(t, paper.ID, ue.PaperID)
		})
	}
}

func TestLLMScorer_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{name: "quota", err: errors.New("insufficient_quota"), reason: ReasonQuota},
		{name: "timeout", err: context.DeadlineExceeded, reason: ReasonTimeout},
		{name: "server", err: &llm.StatusError{Provider: "p", Code: 502}, reason: ReasonProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLLMScorer(&fakeClient{errs: []error{tt.err}}, nil, nil)
			_, err := s.Score(context.Background(), paper)
			var ue *UnavailableError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.reason, ue.Reason)
		})
	}
}

func TestLLMScorer_TruncatesAbstract(t *testing.T) {
	client := &fakeClient{replies: []string{`{"relevance":1,"novelty":1,"rigor":1,"impact":1}`}}
	s := NewLLMScorer(client, nil, nil)
	p := paper
	p.Abstract = strings.Repeat("a", maxAbstractChars+500)

	_, err := s.Score(context.Background(), p)
	require.NoError(t, err)
	assert.NotContains(t, client.prompts[0].Prompt, strings.Repeat("a", maxAbstractChars+1))
	assert.Contains(t, client.prompts[0].Prompt, "any field")
}

// --- WithRetry ---

func TestWithRetry_RecoversFromTransient(t *testing.T) {
	inner := &scriptedScorer{errs: []error{
		&UnavailableError{Reason: ReasonTimeout, Err: context.DeadlineExceeded},
		&UnavailableError{Reason: ReasonProvider, Err: &llm.StatusError{Code: 503}},
	}}
	rec, err := WithRetry(inner, 3).Score(context.Background(), paper)
	require.NoError(t, err)
	assert.Equal(t, 80.0, rec.Total)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_QuotaNotRetried(t *testing.T) {
	inner := &scriptedScorer{errs: []error{&UnavailableError{Reason: ReasonQuota, Err: errors.New("quota")}}}
	_, err := WithRetry(inner, 3).Score(context.Background(), paper)
	require.ErrorIs(t, err, ErrScoreUnavailable)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_PermanentProviderErrorNotRetried(t *testing.T) {
	inner := &scriptedScorer{errs: []error{&UnavailableError{Reason: ReasonProvider, Err: &llm.StatusError{Code: 401}}}}
	_, err := WithRetry(inner, 3).Score(context.Background(), paper)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_Exhausted(t *testing.T) {
	timeout := &UnavailableError{Reason: ReasonTimeout, Err: context.DeadlineExceeded}
	inner := &scriptedScorer{errs: []error{timeout, timeout, timeout}}
	_, err := WithRetry(inner, 2).Score(context.Background(), paper)
	require.ErrorIs(t, err, ErrScoreUnavailable)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	backoffBase = time.Hour
	defer func() { backoffBase = time.Millisecond }()

	inner := &scriptedScorer{errs: []error{&UnavailableError{Reason: ReasonTimeout, Err: context.DeadlineExceeded}}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := WithRetry(inner, 3).Score(ctx, paper)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_ZeroRetriesReturnsInner(t *testing.T) {
	inner := &scriptedScorer{}
	assert.Same(t, inner, WithRetry(inner, 0))
}

// --- aggregation ---

func TestNewAggregator(t *testing.T) {
	rec := types.ScoreRecord{Relevance: 100, Novelty: 0, Rigor: 0, Impact: 0}

	w, err := NewAggregator(types.AggregateConfig{})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, w(rec), 1e-9)

	m, err := NewAggregator(types.AggregateConfig{Method: "mean"})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, m(rec), 1e-9)

	custom, err := NewAggregator(types.AggregateConfig{Method: "weighted", Weights: map[string]float64{"Relevance": 1, "novelty": 0, "rigor": 0, "impact": 0}})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, custom(rec), 1e-9)

	_, err = NewAggregator(types.AggregateConfig{Method: "median"})
	assert.Error(t, err)
	_, err = NewAggregator(types.AggregateConfig{Weights: map[string]float64{"clarity": 1}})
	assert.Error(t, err)
	_, err = NewAggregator(types.AggregateConfig{Weights: map[string]float64{"relevance": 0, "novelty": 0, "rigor": 0, "impact": 0}})
	assert.Error(t, err)
}

func TestApply_RoundsTotal(t *testing.T) {
	rec := Apply(Mean, types.ScoreRecord{Relevance: 33, Novelty: 33, Rigor: 33, Impact: 34})
	assert.Equal(t, 33.25, rec.Total)

	rec = Apply(func(types.ScoreRecord) float64 { return 10.0 / 3 }, types.ScoreRecord{})
	assert.Equal(t, 3.33, rec.Total)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/pkg/types"
)

func sampleRun() types.RunRecord {
	return types.RunRecord{
		RunDate:    "2026-03-10",
		TotalCount: 40,
		DeepReads: []types.Card{{
			PaperID: "doi:10.1038/x1",
			Title:   "Sparse Attention for Protein Folding",
			Venue:   "Nature",
			Date:    "2026-03-09",
			Link:    "https://doi.org/10.1038/x1",
			Report: &types.Report{
				MethodsDetailed: "Sparse transformer over residue graphs.",
				MainConclusion:  "Matches dense accuracy at a tenth of the cost.",
				ValueAssessment: "Worth reading.",
				AISummary:       "Worth reading.",
			},
			Related: []types.RelatedPaper{{
				PaperID: "arxiv:2501.00001",
				Title:   "An Earlier Paper With A Rather Long Title That Gets Cut Off Here",
				Venue:   "arXiv",
				Date:    "2025-01-02",
			}},
		}},
		AlsoNotable: []types.Card{{
			PaperID: "pmid:123",
			Title:   "Clinical Outcomes",
			Venue:   "The Lancet",
			Date:    "2026-03-08",
			Score:   &types.ScoreRecord{Rationale: "Solid trial."},
		}},
	}
}

func TestDigest_English(t *testing.T) {
	text := Digest(sampleRun(), "en")

	assert.True(t, strings.HasPrefix(text, "📚 Research Digest | 2026-03-10\n"))
	assert.Contains(t, text, "Fetched 40 papers · 1 deep reads · 1 also notable")
	assert.Contains(t, text, "━━ Deep Read ━━")
	assert.Contains(t, text, "1. *Sparse Attention for Protein Folding*")
	assert.Contains(t, text, "   📖 Nature | 2026-03-09")
	assert.Contains(t, text, "   🔬 Methods: Sparse transformer over residue graphs.")
	assert.Contains(t, text, "   ⭐ Value: Worth reading.")
	assert.NotContains(t, text, "AI summary", "identical AI summary is omitted")
	assert.NotContains(t, text, "Future:", "empty sections are omitted")
	assert.Contains(t, text, "   🔗 https://doi.org/10.1038/x1")
	assert.Contains(t, text, "📎 Related: 「An Earlier Paper With A Rather Long Title That Get」(arXiv, 2025-01-02) https://arxiv.org/abs/2501.00001")
	assert.Contains(t, text, "━━ Also Notable ━━")
	assert.Contains(t, text, "2. Clinical Outcomes (The Lancet, 2026-03-08)")
	assert.Contains(t, text, "   Solid trial.")
	assert.False(t, strings.HasSuffix(text, "\n"))
}

func TestDigest_Chinese(t *testing.T) {
	text := Digest(sampleRun(), "zh")
	assert.Contains(t, text, "📚 今日研究快报 | 2026-03-10")
	assert.Contains(t, text, "今日筛选 40 篇 · 精读推荐 1 篇 · 其他关注 1 篇")
	assert.Contains(t, text, "🔬 方法：Sparse transformer")
	assert.Contains(t, text, "📎 相关论文：")
}

func TestDigest_Empty(t *testing.T) {
	text := Digest(types.RunRecord{RunDate: "2026-03-10"}, "en")
	assert.Contains(t, text, "Fetched 0 papers · 0 deep reads · 0 also notable")
	assert.NotContains(t, text, "Deep Read")
	assert.NotContains(t, text, "Also Notable")
}

func TestNewWebhook_RequiresURL(t *testing.T) {
	_, err := NewWebhook(types.NotifyConfig{WebhookURL: "  "})
	assert.ErrorIs(t, err, ErrNoWebhook)
}

func TestIsSlack(t *testing.T) {
	assert.True(t, IsSlack("https://hooks.slack.com/services/T/B/X"))
	assert.False(t, IsSlack("https://example.com/hook"))
}

func TestWebhook_Generic(t *testing.T) {
	var got GenericPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := sampleRun()
	rec.Digest = "digest text"
	w, err := NewWebhook(types.NotifyConfig{WebhookURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, w.Notify(context.Background(), rec))

	assert.Equal(t, "2026-03-10", got.Date)
	assert.Equal(t, "digest text", got.Digest)
	require.Len(t, got.Run.DeepReads, 1)
	assert.Equal(t, "doi:10.1038/x1", got.Run.DeepReads[0].PaperID)
}

func TestWebhook_SlackTruncates(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// The Slack path is chosen by URL; route it to the test server.
	w := &Webhook{URL: srv.URL + "/hooks.slack.com/services/T/B/X", Client: srv.Client()}
	rec := types.RunRecord{Digest: strings.Repeat("é", slackTextLimit+100)}
	require.NoError(t, w.Notify(context.Background(), rec))
	assert.Equal(t, slackTextLimit, len([]rune(got.Text)))
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	w := &Webhook{URL: srv.URL}
	err := w.Notify(context.Background(), types.RunRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403: invalid_token")
}

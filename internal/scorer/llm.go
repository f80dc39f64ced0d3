// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-triage/internal/llm"
	"github.com/pdiddy/paper-triage/pkg/types"
)

const systemPrompt = "You are a careful research assistant who rates new papers for one reader. Reply with a single JSON object and nothing else."

var rubricTemplate = template.Must(template.New("rubric").Parse(`Rate the paper below for a reader interested in: {{.Interests}}.

Score each dimension from 0 to 100:
- relevance: how closely the paper matches the reader's interests
- novelty: how new the idea or result is
- rigor: soundness of the methods and evidence as far as the abstract shows
- impact: expected influence on the field

Return JSON: {"relevance": n, "novelty": n, "rigor": n, "impact": n, "rationale": "one sentence"}

Title: {{.Title}}
Venue: {{.Venue}}
{{- if .Abstract}}
Abstract: {{.Abstract}}
{{- end}}
`))

// maxAbstractChars bounds the abstract placed in the prompt.
const maxAbstractChars = 4000

// LLMScorer scores papers with a chat model and a fixed rubric.
type LLMScorer struct {
	client    llm.Client
	agg       Aggregator
	interests string
	maxTokens int
}

// NewLLMScorer builds a scorer for a reader interested in fields. A nil
// aggregator uses the default weighted one.
func NewLLMScorer(client llm.Client, agg Aggregator, fields []string) *LLMScorer {
	if agg == nil {
		agg, _ = Weighted(nil)
	}
	interests := strings.Join(fields, ", ")
	if interests == "" {
		interests = "any field"
	}
	return &LLMScorer{client: client, agg: agg, interests: interests, maxTokens: 300}
}

type rubricReply struct {
	Relevance *float64 `json:"relevance"`
	Novelty   *float64 `json:"novelty"`
	Rigor     *float64 `json:"rigor"`
	Impact    *float64 `json:"impact"`
	Rationale string   `json:"rationale"`
}

// Score sends the rubric prompt and parses the reply.
func (s *LLMScorer) Score(ctx context.Context, p types.Paper) (types.ScoreRecord, error) {
	prompt, err := s.prompt(p)
	if err != nil {
		return types.ScoreRecord{}, err
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: s.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return types.ScoreRecord{}, unavailable(p.ID, err)
	}

	rec, err := parseReply(resp.Text)
	if err != nil {
		return types.ScoreRecord{}, &UnavailableError{PaperID: p.ID, Reason: ReasonMalformed, Err: err}
	}
	rec.Model = resp.Model
	return Apply(s.agg, rec), nil
}

func (s *LLMScorer) prompt(p types.Paper) (string, error) {
	abstract := strings.TrimSpace(p.Abstract)
	if r := []rune(abstract); len(r) > maxAbstractChars {
		abstract = string(r[:maxAbstractChars])
	}
	var buf bytes.Buffer
	err := rubricTemplate.Execute(&buf, struct {
		Interests, Title, Venue, Abstract string
	}{s.interests, p.Title, p.Venue, abstract})
	if err != nil {
		return "", fmt.Errorf("rendering rubric prompt: %w", err)
	}
	return buf.String(), nil
}

func parseReply(text string) (types.ScoreRecord, error) {
	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return types.ScoreRecord{}, err
	}
	var r rubricReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return types.ScoreRecord{}, fmt.Errorf("decoding rubric reply: %w", err)
	}
	if r.Relevance == nil || r.Novelty == nil || r.Rigor == nil || r.Impact == nil {
		return types.ScoreRecord{}, fmt.Errorf("rubric reply missing dimensions: %s", raw)
	}
	return types.ScoreRecord{
		Relevance: *r.Relevance,
		Novelty:   *r.Novelty,
		Rigor:     *r.Rigor,
		Impact:    *r.Impact,
		Rationale: strings.TrimSpace(r.Rationale),
	}, nil
}

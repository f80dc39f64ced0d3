// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report produces the structured deep-read write-up for a paper
// and manages the per-paper markdown files rendered from it.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pdiddy/paper-triage/internal/llm"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// ErrEmptyReport is returned when the model reply holds no report text.
var ErrEmptyReport = errors.New("empty report")

// Generator writes the deep-read report for one paper. source is an
// optional local document (PDF) with the paper's full text; "" means the
// abstract is all there is.
type Generator interface {
	Generate(ctx context.Context, p types.Paper, source string) (types.Report, error)
}

// maxSourceChars bounds the full text placed in the prompt.
const maxSourceChars = 40000

var reportTemplate = template.Must(template.New("report").Parse(`Write a critical deep-read report for the paper below.
{{- if eq .Language "zh"}} Write every field in Simplified Chinese.{{else}} Write every field in English.{{end}}

Return JSON with these string fields:
- "methods_detailed": the method in 3-6 sentences, covering framework, key components and experimental setup
- "main_conclusion": the main result in 1-3 sentences
- "future_direction": 2-4 concrete follow-up directions
- "value_assessment": strengths, weaknesses and who should read it
- "ai_summary": one short paragraph a busy reader can skim

Title: {{.Title}}
Venue: {{.Venue}}
Date: {{.Date}}
{{- if .Abstract}}
Abstract: {{.Abstract}}
{{- end}}
{{- if .FullText}}

Full text (may be truncated):
{{.FullText}}
{{- end}}
`))

// LLMGenerator generates reports with a chat model.
type LLMGenerator struct {
	client     llm.Client
	language   string
	maxTokens  int
	sourceText func(path string) (string, error)
	now        func() time.Time
}

// NewLLMGenerator creates a generator writing in language ("en" or "zh").
func NewLLMGenerator(client llm.Client, language string) *LLMGenerator {
	return &LLMGenerator{
		client:     client,
		language:   language,
		maxTokens:  2000,
		sourceText: SourceText,
		now:        time.Now,
	}
}

type reportReply struct {
	MethodsDetailed string `json:"methods_detailed"`
	MainConclusion  string `json:"main_conclusion"`
	FutureDirection string `json:"future_direction"`
	ValueAssessment string `json:"value_assessment"`
	AISummary       string `json:"ai_summary"`
}

// Generate sends the report prompt and parses the reply. A source that
// cannot be read is skipped and the report is written from the abstract.
func (g *LLMGenerator) Generate(ctx context.Context, p types.Paper, source string) (types.Report, error) {
	var fullText string
	if source != "" {
		if text, err := g.sourceText(source); err == nil {
			fullText = text
		}
	}
	if r := []rune(fullText); len(r) > maxSourceChars {
		fullText = string(r[:maxSourceChars])
	}

	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Language, Title, Venue, Date, Abstract, FullText string
	}{g.language, p.Title, p.Venue, p.DateString(), strings.TrimSpace(p.Abstract), fullText})
	if err != nil {
		return types.Report{}, fmt.Errorf("rendering report prompt: %w", err)
	}

	resp, err := g.client.Complete(ctx, llm.Request{
		System:      "You are a senior researcher writing concise, factual paper reviews. Reply with a single JSON object.",
		Prompt:      buf.String(),
		MaxTokens:   g.maxTokens,
		Temperature: 0.3,
		JSON:        true,
	})
	if err != nil {
		return types.Report{}, fmt.Errorf("generating report for %s: %w", p.ID, err)
	}

	raw, err := llm.ExtractJSON(resp.Text)
	if err != nil {
		return types.Report{}, fmt.Errorf("report for %s: %w", p.ID, err)
	}
	var reply reportReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return types.Report{}, fmt.Errorf("decoding report for %s: %w", p.ID, err)
	}

	rep := types.Report{
		MethodsDetailed: strings.TrimSpace(reply.MethodsDetailed),
		MainConclusion:  strings.TrimSpace(reply.MainConclusion),
		FutureDirection: strings.TrimSpace(reply.FutureDirection),
		ValueAssessment: strings.TrimSpace(reply.ValueAssessment),
		AISummary:       strings.TrimSpace(reply.AISummary),
		Model:           resp.Model,
		GeneratedAt:     g.now().UTC(),
	}
	if rep.IsEmpty() {
		return types.Report{}, fmt.Errorf("report for %s: %w", p.ID, ErrEmptyReport)
	}
	return rep, nil
}

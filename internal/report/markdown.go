// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// Frontmatter is the YAML header of a report file.
type Frontmatter struct {
	Title   string `yaml:"title"`
	Venue   string `yaml:"venue"`
	Date    string `yaml:"date"`
	Link    string `yaml:"link"`
	PaperID string `yaml:"paper_id"`
	Type    string `yaml:"type"`
}

const noteType = "paper-note"

type headings struct {
	metadata, summary, methods, conclusion, future, value, related, notes, notesHint string
}

var sectionHeadings = map[string]headings{
	"en": {
		metadata:   "Metadata",
		summary:    "AI Summary",
		methods:    "Method Details",
		conclusion: "Main Conclusion",
		future:     "Future Direction",
		value:      "Value Assessment",
		related:    "Related Papers",
		notes:      "Reading Notes",
		notesHint:  "Write your thoughts, questions, or follow-up ideas here.",
	},
	"zh": {
		metadata:   "元数据",
		summary:    "AI 摘要",
		methods:    "方法细节",
		conclusion: "主要结论",
		future:     "未来方向",
		value:      "价值评估",
		related:    "相关论文",
		notes:      "阅读笔记",
		notesHint:  "在这里记录你的想法、问题或后续计划。",
	},
}

// Render produces the markdown note for a deep-read card.
func Render(card types.Card, language string) ([]byte, error) {
	h, ok := sectionHeadings[language]
	if !ok {
		h = sectionHeadings["en"]
	}

	fm, err := yaml.Marshal(Frontmatter{
		Title:   card.Title,
		Venue:   card.Venue,
		Date:    card.Date,
		Link:    card.Link,
		PaperID: card.PaperID,
		Type:    noteType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", card.Title)

	fmt.Fprintf(&b, "## %s\n\n| Field | Value |\n|-------|-------|\n", h.metadata)
	fmt.Fprintf(&b, "| Venue | %s |\n", tableCell(card.Venue))
	fmt.Fprintf(&b, "| Date | %s |\n", card.Date)
	if card.Link != "" {
		fmt.Fprintf(&b, "| Full Text | [Link](%s) |\n", card.Link)
	}
	kind := identity.KindOf(card.PaperID)
	value := strings.TrimPrefix(card.PaperID, kind.String()+":")
	switch kind {
	case identity.KindDOI:
		fmt.Fprintf(&b, "| DOI | [%s](%s) |\n", value, identity.Link(card.PaperID, ""))
	case identity.KindArxiv:
		fmt.Fprintf(&b, "| arXiv | [%s](%s) |\n", value, identity.Link(card.PaperID, ""))
	case identity.KindPMID:
		fmt.Fprintf(&b, "| PubMed | [%s](%s) |\n", value, identity.Link(card.PaperID, ""))
	}
	if s := card.Score; s != nil {
		fmt.Fprintf(&b, "| Score | %.1f (relevance %.0f, novelty %.0f, rigor %.0f, impact %.0f) |\n",
			s.Total, s.Relevance, s.Novelty, s.Rigor, s.Impact)
	}
	b.WriteString("\n")

	if r := card.Report; r != nil {
		section(&b, h.summary, r.AISummary)
		section(&b, h.methods, r.MethodsDetailed)
		section(&b, h.conclusion, r.MainConclusion)
		section(&b, h.future, r.FutureDirection)
		section(&b, h.value, r.ValueAssessment)
	}

	if len(card.Related) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", h.related)
		for _, rp := range card.Related {
			if rp.Link != "" {
				fmt.Fprintf(&b, "- [%s](%s) *(sim %.0f%%)*\n", rp.Title, rp.Link, rp.Similarity*100)
			} else {
				fmt.Fprintf(&b, "- %s *(sim %.0f%%)*\n", rp.Title, rp.Similarity*100)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n## %s\n\n> %s\n", h.notes, h.notesHint)
	return b.Bytes(), nil
}

func section(b *bytes.Buffer, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", heading, body)
}

func tableCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ParseFrontmatter reads the YAML header of a report file. Content without
// a header yields a zero Frontmatter.
func ParseFrontmatter(content []byte) (Frontmatter, error) {
	var fm Frontmatter
	text := string(content)
	if !strings.HasPrefix(text, "---\n") {
		return fm, nil
	}
	end := strings.Index(text[4:], "\n---")
	if end < 0 {
		return fm, nil
	}
	if err := yaml.Unmarshal([]byte(text[4:4+end+1]), &fm); err != nil {
		return fm, fmt.Errorf("parsing frontmatter: %w", err)
	}
	return fm, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notify renders the run digest and delivers it to a webhook.
package notify

import (
	"fmt"
	"strings"

	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

const (
	rule            = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	relatedTitleMax = 50
	languageChinese = "zh"
)

type labels struct {
	title, counts, deepRead, alsoNotable                   string
	methods, conclusion, future, value, aiSummary, related string
}

var english = labels{
	title:       "📚 Research Digest | %s",
	counts:      "Fetched %d papers · %d deep reads · %d also notable",
	deepRead:    "━━ Deep Read ━━",
	alsoNotable: "━━ Also Notable ━━",
	methods:     "Methods: ",
	conclusion:  "Conclusion: ",
	future:      "Future: ",
	value:       "Value: ",
	aiSummary:   "AI summary: ",
	related:     "Related: ",
}

var chinese = labels{
	title:       "📚 今日研究快报 | %s",
	counts:      "今日筛选 %d 篇 · 精读推荐 %d 篇 · 其他关注 %d 篇",
	deepRead:    "━━ 精读推荐 ━━",
	alsoNotable: "━━ 其他值得关注 ━━",
	methods:     "方法：",
	conclusion:  "结论：",
	future:      "未来：",
	value:       "价值：",
	aiSummary:   "AI摘要：",
	related:     "相关论文：",
}

func labelsFor(language string) labels {
	if language == languageChinese {
		return chinese
	}
	return english
}

// Digest renders a run as a plain-text message. Deep reads are numbered
// first; also-notable papers continue the numbering.
func Digest(rec types.RunRecord, language string) string {
	l := labelsFor(language)
	var b strings.Builder

	fmt.Fprintf(&b, l.title+"\n", rec.RunDate)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, l.counts+"\n\n", rec.TotalCount, len(rec.DeepReads), len(rec.AlsoNotable))

	if len(rec.DeepReads) > 0 {
		b.WriteString(l.deepRead + "\n\n")
		for i, c := range rec.DeepReads {
			writeDeepRead(&b, l, i+1, c)
		}
	}

	if len(rec.AlsoNotable) > 0 {
		b.WriteString(l.alsoNotable + "\n\n")
		base := len(rec.DeepReads) + 1
		for i, c := range rec.AlsoNotable {
			head := fmt.Sprintf("%d. %s (%s, %s)", base+i, c.Title, c.Venue, c.Date)
			if c.Link != "" {
				head += " | " + c.Link
			}
			b.WriteString(head + "\n")
			if s := cardSummary(c); s != "" {
				b.WriteString("   " + s + "\n")
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeDeepRead(b *strings.Builder, l labels, n int, c types.Card) {
	fmt.Fprintf(b, "%d. *%s*\n", n, c.Title)
	fmt.Fprintf(b, "   📖 %s | %s\n", c.Venue, c.Date)

	if r := c.Report; r != nil {
		line(b, "🔬", l.methods, r.MethodsDetailed)
		line(b, "💡", l.conclusion, r.MainConclusion)
		line(b, "🚀", l.future, r.FutureDirection)
		line(b, "⭐", l.value, r.ValueAssessment)
		if strings.TrimSpace(r.AISummary) != strings.TrimSpace(r.ValueAssessment) {
			line(b, "🤖", l.aiSummary, r.AISummary)
		}
	}
	if c.Link != "" {
		fmt.Fprintf(b, "   🔗 %s\n", c.Link)
	}

	if len(c.Related) > 0 {
		parts := make([]string, 0, len(c.Related))
		for _, r := range c.Related {
			label := fmt.Sprintf("「%s」(%s, %s)", truncateRunes(r.Title, relatedTitleMax), r.Venue, r.Date)
			if link := identity.Link(r.PaperID, r.Link); link != "" {
				label += " " + link
			}
			parts = append(parts, label)
		}
		fmt.Fprintf(b, "   📎 %s%s\n", l.related, strings.Join(parts, " | "))
	}
	b.WriteString("\n")
}

func line(b *strings.Builder, icon, label, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintf(b, "   %s %s%s\n", icon, label, text)
}

// cardSummary prefers the report's summary for promoted or scored cards,
// then the score rationale.
func cardSummary(c types.Card) string {
	if s := c.Report.Summary(); s != "" {
		return s
	}
	if c.Score != nil {
		return strings.TrimSpace(c.Score.Rationale)
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-triage/internal/httputil"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivBackend lists recent submissions from the arXiv API.
type ArxivBackend struct {
	Client     *http.Client
	UserAgent  string
	MaxResults int
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Fetch queries arXiv for submissions in the request window that match
// any of the fields.
func (b *ArxivBackend) Fetch(ctx context.Context, req Request) ([]types.Paper, error) {
	from, until := req.Window()
	q := buildArxivQuery(req.Fields, from, until)

	maxResults := b.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	params := url.Values{
		"search_query": {q},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(maxResults)},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"descending"},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		httpReq.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, httpReq, 3)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var papers []types.Paper
	for _, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		p := types.Paper{
			ID:       "arxiv:" + arxivID,
			Title:    collapseSpace(entry.Title),
			Venue:    "arXiv",
			Abstract: collapseSpace(entry.Summary),
			Link:     strings.TrimSpace(entry.ID),
			Source:   "arxiv",
		}
		if entry.JournalRef != "" {
			p.Venue = collapseSpace(entry.JournalRef)
		}
		for _, a := range entry.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		for _, c := range entry.Categories {
			if c.Term != "" {
				p.Tags = append(p.Tags, c.Term)
			}
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			p.Date = t
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// buildArxivQuery ORs the fields as phrases and restricts to the
// submission window.
func buildArxivQuery(fields []string, from, until time.Time) string {
	var terms []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.Contains(f, " ") {
			terms = append(terms, `all:"`+f+`"`)
		} else {
			terms = append(terms, "all:"+f)
		}
	}

	const stamp = "200601021504"
	window := fmt.Sprintf("submittedDate:[%s TO %s]", from.UTC().Format(stamp), until.UTC().Format(stamp))
	if len(terms) == 0 {
		return window
	}
	return "(" + strings.Join(terms, " OR ") + ") AND " + window
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
	JournalRef string          `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" gives "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

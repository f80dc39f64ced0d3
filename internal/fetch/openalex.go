// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-triage/internal/httputil"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend lists recent works from the OpenAlex API.
type OpenAlexBackend struct {
	Client     *http.Client
	UserAgent  string
	MaxResults int
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Fetch queries OpenAlex for works published in the request window that
// mention any of the fields. Journal filtering happens during selection.
func (b *OpenAlexBackend) Fetch(ctx context.Context, req Request) ([]types.Paper, error) {
	from, until := req.Window()

	maxResults := b.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}
	if maxResults > 200 {
		maxResults = 200
	}

	params := url.Values{
		"per_page": {strconv.Itoa(maxResults)},
		"page":     {"1"},
		"sort":     {"publication_date:desc"},
		"filter": {strings.Join([]string{
			"from_publication_date:" + from.Format(types.DateLayout),
			"to_publication_date:" + until.Format(types.DateLayout),
		}, ",")},
	}
	if q := buildOpenAlexQuery(req.Fields); q != "" {
		params.Set("search", q)
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		httpReq.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, httpReq, 3)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	var papers []types.Paper
	for _, work := range oar.Results {
		if strings.TrimSpace(work.Title) == "" {
			continue
		}
		p := types.Paper{
			Title:    collapseSpace(work.Title),
			Abstract: reconstructAbstract(work.AbstractInvertedIndex),
			Source:   "openalex",
			Venue:    work.PrimaryLocation.Source.DisplayName,
			Link:     work.PrimaryLocation.LandingPageURL,
		}

		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				p.Authors = append(p.Authors, authorship.Author.DisplayName)
			}
		}
		for _, topic := range work.Topics {
			if topic.DisplayName != "" {
				p.Tags = append(p.Tags, topic.DisplayName)
			}
		}

		if work.PublicationDate != "" {
			if t, parseErr := time.Parse(types.DateLayout, work.PublicationDate); parseErr == nil {
				p.Date = t
			}
		} else if work.PublicationYear > 0 {
			p.Date = time.Date(work.PublicationYear, 1, 1, 0, 0, 0, 0, time.UTC)
		}

		// OpenAlex is DOI-centric; PubMed ids cover the biomedical works
		// that have none.
		switch {
		case work.DOI != "":
			p.ID = work.DOI
		case work.IDs.PMID != "":
			p.ID = work.IDs.PMID
		default:
			p.ID = work.ID
		}
		if p.Link == "" {
			p.Link = work.DOI
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// buildOpenAlexQuery ORs the fields into one search expression.
func buildOpenAlexQuery(fields []string) string {
	var parts []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.Contains(f, " ") {
			f = `"` + f + `"`
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, " OR ")
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	IDs                   openAlexIDs          `json:"ids"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
	Topics                []openAlexTopic      `json:"topics"`
}

type openAlexIDs struct {
	PMID string `json:"pmid"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	DisplayName string `json:"display_name"`
}

type openAlexLocation struct {
	LandingPageURL string         `json:"landing_page_url"`
	Source         openAlexSource `json:"source"`
}

type openAlexSource struct {
	DisplayName string `json:"display_name"`
}

type openAlexTopic struct {
	DisplayName string `json:"display_name"`
}

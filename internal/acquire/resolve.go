// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"strings"

	"github.com/pdiddy/paper-triage/internal/identity"
)

// Base URLs for PDF resolution. Declared as vars so tests can substitute
// httptest servers.
var (
	arxivPDFBase    = "https://arxiv.org/pdf/"
	openAlexAPIBase = "https://api.openalex.org/works/"
)

// Target is a paper whose full text may be downloadable.
type Target struct {
	Kind identity.Kind
	// Key is the identifier without its kind prefix.
	Key string
	// Slug is the file stem the PDF is stored under.
	Slug string
}

// Resolve classifies a canonical id. Only arXiv and DOI papers can have a
// full text fetched; other kinds return ok=false.
func Resolve(canonicalID string) (Target, bool) {
	kind := identity.KindOf(canonicalID)
	if kind != identity.KindArxiv && kind != identity.KindDOI {
		return Target{}, false
	}
	_, key, _ := strings.Cut(canonicalID, ":")
	if key == "" {
		return Target{}, false
	}
	return Target{Kind: kind, Key: key, Slug: identity.Slug(canonicalID)}, true
}

// ArxivPDFURL returns the arxiv.org PDF endpoint for an arXiv id.
func ArxivPDFURL(id string) string {
	return arxivPDFBase + id
}

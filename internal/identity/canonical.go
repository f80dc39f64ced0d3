// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identity derives canonical paper identities and merges repeated
// sightings of the same paper into one archive entry.
package identity

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Kind classifies a canonical identifier.
type Kind int

const (
	KindUnknown Kind = iota
	KindDOI
	KindArxiv
	KindPMID
	KindTitle
)

func (k Kind) String() string {
	switch k {
	case KindDOI:
		return "doi"
	case KindArxiv:
		return "arxiv"
	case KindPMID:
		return "pmid"
	case KindTitle:
		return "title"
	default:
		return "unknown"
	}
}

// Base URLs for links reconstructed from canonical ids. Declared as vars
// so tests can substitute them.
var (
	doiBase    = "https://doi.org/"
	arxivBase  = "https://arxiv.org/abs/"
	pubmedBase = "https://pubmed.ncbi.nlm.nih.gov/"
)

// arxivPattern matches new-style arXiv IDs with an optional version: "2301.07041v2".
var arxivPattern = regexp.MustCompile(`^(\d{4}\.\d{4,5})(?:v\d+)?$`)

// arxivLegacyPattern matches pre-2007 arXiv IDs: "hep-th/9901001v1".
var arxivLegacyPattern = regexp.MustCompile(`^([a-z\-]+(?:\.[a-z]{2})?/\d{7})(?:v\d+)?$`)

// doiPattern matches DOIs: "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d+(?:\.\d+)*/\S+$`)

// arxivDOIPrefix is the DataCite prefix arXiv registers DOIs under.
const arxivDOIPrefix = "10.48550/arxiv."

var pmidPattern = regexp.MustCompile(`^\d{1,9}$`)

// urlPrefixes maps lowercase URL prefixes to the identifier kind they carry.
var urlPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"https://doi.org/", KindDOI},
	{"http://doi.org/", KindDOI},
	{"https://dx.doi.org/", KindDOI},
	{"http://dx.doi.org/", KindDOI},
	{"doi.org/", KindDOI},
	{"https://arxiv.org/abs/", KindArxiv},
	{"http://arxiv.org/abs/", KindArxiv},
	{"https://arxiv.org/pdf/", KindArxiv},
	{"http://arxiv.org/pdf/", KindArxiv},
	{"https://pubmed.ncbi.nlm.nih.gov/", KindPMID},
	{"http://pubmed.ncbi.nlm.nih.gov/", KindPMID},
}

// Canonicalize normalizes a raw identifier into its canonical form
// ("doi:<lowercase doi>", "arxiv:<id without version>", "pmid:<digits>").
// Prefixes are matched case-insensitively and surrounding whitespace is
// ignored. DOIs registered for arXiv preprints canonicalize to the arXiv
// form. It returns "" and KindUnknown when raw carries no identifier.
func Canonicalize(raw string) (string, Kind) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", KindUnknown
	}
	lower := strings.ToLower(s)

	for _, p := range urlPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return canonical(p.kind, s[len(p.prefix):])
		}
	}

	for _, p := range []struct {
		prefix string
		kind   Kind
	}{{"doi:", KindDOI}, {"arxiv:", KindArxiv}, {"pmid:", KindPMID}} {
		if strings.HasPrefix(lower, p.prefix) {
			return canonical(p.kind, s[len(p.prefix):])
		}
	}

	switch {
	case doiPattern.MatchString(lower):
		return canonical(KindDOI, s)
	case arxivPattern.MatchString(lower), arxivLegacyPattern.MatchString(lower):
		return canonical(KindArxiv, s)
	}
	return "", KindUnknown
}

func canonical(kind Kind, value string) (string, Kind) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimRight(v, "/.")
	if v == "" {
		return "", KindUnknown
	}

	switch kind {
	case KindDOI:
		if strings.HasPrefix(v, arxivDOIPrefix) {
			return canonical(KindArxiv, v[len(arxivDOIPrefix):])
		}
		if !doiPattern.MatchString(v) {
			return "", KindUnknown
		}
		return "doi:" + v, KindDOI
	case KindArxiv:
		v = strings.TrimSuffix(v, ".pdf")
		if m := arxivPattern.FindStringSubmatch(v); m != nil {
			return "arxiv:" + m[1], KindArxiv
		}
		if m := arxivLegacyPattern.FindStringSubmatch(v); m != nil {
			return "arxiv:" + m[1], KindArxiv
		}
		return "", KindUnknown
	case KindPMID:
		v = strings.TrimLeft(v, "0")
		if !pmidPattern.MatchString(v) {
			return "", KindUnknown
		}
		return "pmid:" + v, KindPMID
	}
	return "", KindUnknown
}

// KindOf returns the kind of an already canonical id.
func KindOf(canonicalID string) Kind {
	prefix, _, ok := strings.Cut(canonicalID, ":")
	if !ok {
		return KindUnknown
	}
	switch prefix {
	case "doi":
		return KindDOI
	case "arxiv":
		return KindArxiv
	case "pmid":
		return KindPMID
	case "title":
		return KindTitle
	}
	return KindUnknown
}

// TitleKey returns a lowercased, punctuation-stripped, whitespace-collapsed
// version of the title.
func TitleKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TitleID returns the fallback canonical id for a paper without any
// identifier. Equal title keys yield equal ids.
func TitleID(title string) string {
	key := TitleKey(title)
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("title:%x", h[:8])
}

// Link reconstructs the landing page URL for a canonical id. Title-keyed
// and unknown ids fall back to the supplied link.
func Link(canonicalID, fallback string) string {
	prefix, value, _ := strings.Cut(canonicalID, ":")
	switch prefix {
	case "doi":
		return doiBase + value
	case "arxiv":
		return arxivBase + value
	case "pmid":
		return pubmedBase + value + "/"
	}
	return fallback
}

// Slug returns a filesystem-safe filename stem for the canonical id.
func Slug(canonicalID string) string {
	s := strings.NewReplacer("/", "-", ":", "-", "\\", "-", " ", "-").Replace(canonicalID)
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/internal/httputil"
	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

const fakePDF = "%PDF-1.4\n% fake document\n%%EOF\n"

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// withBases points the package endpoints at ts for the duration of a test.
func withBases(t *testing.T, ts *httptest.Server) {
	t.Helper()
	oldPDF, oldOA := arxivPDFBase, openAlexAPIBase
	arxivPDFBase = ts.URL + "/pdf/"
	openAlexAPIBase = ts.URL + "/works/"
	t.Cleanup(func() { arxivPDFBase, openAlexAPIBase = oldPDF, oldOA })
}

func newAcquirer(t *testing.T) *Acquirer {
	t.Helper()
	return New(types.AcquireConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "paper-triage-test"},
		Dir:        t.TempDir(),
	}, "me@example.com")
}

func TestResolve(t *testing.T) {
	tests := []struct {
		id   string
		ok   bool
		kind identity.Kind
		key  string
		slug string
	}{
		{"arxiv:2301.07041", true, identity.KindArxiv, "2301.07041", "arxiv-2301.07041"},
		{"doi:10.1038/s41586-024-07487-w", true, identity.KindDOI, "10.1038/s41586-024-07487-w", "doi-10.1038-s41586-024-07487-w"},
		{"pmid:12345", false, identity.KindUnknown, "", ""},
		{"title:abcdef0123456789", false, identity.KindUnknown, "", ""},
		{"", false, identity.KindUnknown, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := Resolve(tt.id)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.key, got.Key)
			assert.Equal(t, tt.slug, got.Slug)
		})
	}
}

func TestAcquire_Arxiv(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/pdf/2301.07041", r.URL.Path)
		assert.Equal(t, "paper-triage-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(fakePDF))
	}))
	defer ts.Close()
	withBases(t, ts)

	a := newAcquirer(t)
	path, err := a.Acquire(context.Background(), "arxiv:2301.07041", types.Paper{})
	require.NoError(t, err)
	assert.Equal(t, "arxiv-2301.07041.pdf", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fakePDF, string(data))

	// A second call reuses the file on disk.
	again, err := a.Acquire(context.Background(), "arxiv:2301.07041", types.Paper{})
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAcquire_DOIThroughOpenAlex(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/works/"):
			assert.True(t, strings.HasSuffix(r.URL.Path, "10.1145/1234567"))
			assert.Equal(t, "me@example.com", r.URL.Query().Get("mailto"))
			w.Write([]byte(`{"best_oa_location": {"pdf_url": "` + ts.URL + `/oa/paper.pdf", "landing_page_url": "x"}}`))
		case r.URL.Path == "/oa/paper.pdf":
			w.Write([]byte(fakePDF))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	withBases(t, ts)

	path, err := newAcquirer(t).Acquire(context.Background(), "doi:10.1145/1234567", types.Paper{})
	require.NoError(t, err)
	assert.Equal(t, "doi-10.1145-1234567.pdf", filepath.Base(path))
}

func TestAcquire_NoFullText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "10.1/closed"):
			w.Write([]byte(`{"best_oa_location": null}`))
		case strings.Contains(r.URL.Path, "10.1/landing"):
			w.Write([]byte(`{"best_oa_location": {"pdf_url": "", "landing_page_url": "https://example.com"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	withBases(t, ts)

	a := newAcquirer(t)
	for _, id := range []string{"doi:10.1/closed", "doi:10.1/landing", "doi:10.1/missing", "pmid:123", "title:00ff"} {
		_, err := a.Acquire(context.Background(), id, types.Paper{})
		assert.ErrorIs(t, err, ErrNoFullText, id)
	}
}

func TestAcquire_RejectsHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>Please log in</body></html>"))
	}))
	defer ts.Close()
	withBases(t, ts)

	a := newAcquirer(t)
	_, err := a.Acquire(context.Background(), "arxiv:2301.07041", types.Paper{})
	assert.ErrorIs(t, err, ErrNotPDF)

	entries, err := os.ReadDir(a.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial or temp file is left behind")
}

func TestAcquire_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakePDF + strings.Repeat("x", 1024)))
	}))
	defer ts.Close()
	withBases(t, ts)

	a := newAcquirer(t)
	a.maxBytes = 64
	_, err := a.Acquire(context.Background(), "arxiv:2301.07041", types.Paper{})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestAcquire_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()
	withBases(t, ts)

	_, err := newAcquirer(t).Acquire(context.Background(), "arxiv:2301.07041", types.Paper{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
}

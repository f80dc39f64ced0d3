// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads the full-text PDF of a paper so that its
// deep-read report can be written from more than the abstract. arXiv
// papers are fetched from arxiv.org; DOI papers are fetched from their
// open-access location as listed by OpenAlex.
package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pdiddy/paper-triage/internal/httputil"
	"github.com/pdiddy/paper-triage/internal/identity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

var (
	// ErrNoFullText is returned when a paper has no downloadable PDF.
	ErrNoFullText = errors.New("no full text available")

	// ErrNotPDF is returned when the download is not a PDF document.
	ErrNotPDF = errors.New("download is not a PDF")

	// ErrTooLarge is returned when a download exceeds the size limit.
	ErrTooLarge = errors.New("download exceeds size limit")
)

const defaultMaxBytes = 50 << 20

// Acquirer downloads PDFs into a directory. A PDF already on disk is
// reused without a request.
type Acquirer struct {
	client    *http.Client
	dir       string
	userAgent string
	email     string
	maxBytes  int64
}

// New creates an acquirer from configuration. email is sent to OpenAlex
// for polite pool access.
func New(cfg types.AcquireConfig, email string) *Acquirer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = types.DefaultConfig().Acquire.Timeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Acquirer{
		client:    &http.Client{Timeout: timeout},
		dir:       cfg.Dir,
		userAgent: cfg.UserAgent,
		email:     email,
		maxBytes:  maxBytes,
	}
}

// Acquire returns the local path of the paper's PDF, downloading it when
// needed. Papers without an arXiv id or an open-access DOI return
// ErrNoFullText.
func (a *Acquirer) Acquire(ctx context.Context, canonicalID string, _ types.Paper) (string, error) {
	target, ok := Resolve(canonicalID)
	if !ok {
		return "", fmt.Errorf("%s: %w", canonicalID, ErrNoFullText)
	}

	pdfPath := filepath.Join(a.dir, target.Slug+".pdf")
	if _, err := os.Stat(pdfPath); err == nil {
		return pdfPath, nil
	}

	var pdfURL string
	switch target.Kind {
	case identity.KindArxiv:
		pdfURL = ArxivPDFURL(target.Key)
	case identity.KindDOI:
		u, err := a.resolveOpenAlex(ctx, target.Key)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", canonicalID, err)
		}
		pdfURL = u
	}
	if pdfURL == "" {
		return "", fmt.Errorf("%s: %w", canonicalID, ErrNoFullText)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", a.dir, err)
	}
	if err := a.download(ctx, pdfURL, pdfPath); err != nil {
		return "", fmt.Errorf("downloading %s: %w", canonicalID, err)
	}
	return pdfPath, nil
}

// download fetches url to destPath through a temporary file so that a
// failed transfer never leaves a partial PDF behind.
func (a *Acquirer) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, a.client, req, 3)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, io.LimitReader(resp.Body, a.maxBytes+1))
	closeErr := tmpFile.Close()
	switch {
	case copyErr != nil:
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	case closeErr != nil:
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	case n > a.maxBytes:
		os.Remove(tmpPath)
		return ErrTooLarge
	}

	if err := checkPDF(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// checkPDF verifies the file starts with the PDF magic bytes. Publishers
// often answer with an HTML landing page instead of the document.
func checkPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 5)
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, []byte("%PDF-")) {
		return ErrNotPDF
	}
	return nil
}

// Package inbox imports eBon documents from a directory, either once or by
// watching it for new files.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/ebon-tracker/internal/bill"
	"github.com/zombor/ebon-tracker/internal/metrics"
)

// DefaultExtensions are the file types picked up from an inbox directory
var DefaultExtensions = []string{".pdf"}

// Service is the part of the bill service the importer drives
type Service interface {
	Ingest(ctx context.Context, userID, filename string, data []byte, contentType string) (*bill.Outcome, error)
	ListHashes(ctx context.Context, userID string) ([]string, error)
}

// Summary counts the outcomes of one directory import
type Summary struct {
	Imported int `json:"imported"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"` // already uploaded, by file hash
	Failed   int `json:"failed"`
}

// Importer ingests files on behalf of one user
type Importer struct {
	service     Service
	userID      string
	concurrency int
	extensions  map[string]string
}

// NewImporter creates an Importer. concurrency <= 0 means one file at a time.
func NewImporter(service Service, userID string, concurrency int, extensions []string) *Importer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]string, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = contentTypeFor(ext)
	}
	return &Importer{
		service:     service,
		userID:      userID,
		concurrency: concurrency,
		extensions:  exts,
	}
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// accepts reports whether path has one of the importer's extensions
func (i *Importer) accepts(path string) bool {
	_, ok := i.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ImportFile ingests a single file
func (i *Importer) ImportFile(ctx context.Context, path string) (*bill.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	contentType := i.extensions[strings.ToLower(filepath.Ext(path))]
	if contentType == "" {
		contentType = contentTypeFor(strings.ToLower(filepath.Ext(path)))
	}
	outcome, err := i.service.Ingest(ctx, i.userID, filepath.Base(path), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", path, err)
	}
	return outcome, nil
}

// ImportDir ingests every matching file in dir. Files whose hash is already
// stored are skipped without being read by the parser. A failing file is
// logged and counted; it does not stop the import.
func (i *Importer) ImportDir(ctx context.Context, dir string) (Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("reading directory: %w", err)
	}

	hashes, err := i.service.ListHashes(ctx, i.userID)
	if err != nil {
		return Summary{}, fmt.Errorf("listing known hashes: %w", err)
	}
	known := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		known[h] = true
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !i.accepts(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var (
		mu      sync.Mutex
		summary Summary
	)
	count := func(f func(*Summary)) {
		mu.Lock()
		f(&summary)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("Failed to read eBon", "path", path, "error", err)
				metrics.ObserveImportFile(metrics.ResultFailed)
				count(func(s *Summary) { s.Failed++ })
				return nil
			}
			if known[bill.Hash(data)] {
				metrics.ObserveImportFile("skipped")
				count(func(s *Summary) { s.Skipped++ })
				return nil
			}

			outcome, err := i.service.Ingest(gctx, i.userID, filepath.Base(path), data, i.extensions[strings.ToLower(filepath.Ext(path))])
			switch {
			case err != nil && errors.Is(err, context.Canceled):
				return err
			case err != nil:
				slog.Warn("Failed to import eBon", "path", path, "error", err)
				metrics.ObserveImportFile(metrics.ResultFailed)
				count(func(s *Summary) { s.Failed++ })
			case outcome.Existing:
				metrics.ObserveImportFile(metrics.ResultExisting)
				count(func(s *Summary) { s.Existing++ })
			default:
				slog.Info("Imported eBon", "path", path, "id", outcome.Bill.ID)
				metrics.ObserveImportFile(metrics.ResultCreated)
				count(func(s *Summary) { s.Imported++ })
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

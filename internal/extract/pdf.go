package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultMaxPages bounds the pages read from one eBon
const DefaultMaxPages = 10

// PDF reads the text layer of eBon PDFs
type PDF struct {
	maxPages int
	fallback Extractor
}

// NewPDF creates a PDF extractor. When a PDF carries no text layer the first
// page is rendered and handed to fallback, if one is set.
func NewPDF(maxPages int, fallback Extractor) *PDF {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PDF{maxPages: maxPages, fallback: fallback}
}

// pageCount validates the document structure before it is handed to MuPDF
func pageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return n, nil
}

// ExtractText implements Extractor
func (p *PDF) ExtractText(ctx context.Context, data []byte, _ string) (string, error) {
	pages, err := pageCount(data)
	if err != nil {
		return "", err
	}
	if pages > p.maxPages {
		return "", fmt.Errorf("%w: %d pages exceeds limit of %d", ErrUnreadableDocument, pages, p.maxPages)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("%w: opening PDF: %v", ErrUnreadableDocument, err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("%w: reading page %d: %v", ErrUnreadableDocument, i+1, err)
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
	}

	text := b.String()
	if strings.TrimSpace(text) == "" && p.fallback != nil {
		slog.Info("PDF has no text layer, transcribing rendered page", "pages", pages)
		return p.fallback.ExtractText(ctx, data, "application/pdf")
	}
	return text, nil
}

// Close is a no-op; the fallback is owned by the caller
func (p *PDF) Close() error {
	return nil
}

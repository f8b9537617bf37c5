package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Router dispatches a document to the extractor for its content type
type Router struct {
	pdf   Extractor
	image Extractor
}

// NewRouter creates a Router. image may be nil, in which case image uploads
// are rejected as unsupported.
func NewRouter(pdf, image Extractor) *Router {
	return &Router{pdf: pdf, image: image}
}

func normalize(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// ExtractText implements Extractor
func (r *Router) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	ct := normalize(contentType)
	switch {
	case ct == "application/pdf":
		return r.pdf.ExtractText(ctx, data, ct)
	case ct == "text/plain":
		return string(data), nil
	case strings.HasPrefix(ct, "image/"):
		if r.image == nil {
			return "", fmt.Errorf("%w: %s (no image transcriber configured)", ErrUnsupportedContent, ct)
		}
		return r.image.ExtractText(ctx, data, ct)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, ct)
	}
}

// Close closes both extractors
func (r *Router) Close() error {
	var errs []error
	if r.pdf != nil {
		errs = append(errs, r.pdf.Close())
	}
	if r.image != nil {
		errs = append(errs, r.image.Close())
	}
	return errors.Join(errs...)
}

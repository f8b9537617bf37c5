// Package extract turns uploaded eBon documents into plain text for the
// parser. PDFs are read from their text layer; images are transcribed by a
// vision model.
package extract

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedContent is returned for a content type no extractor handles
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrUnreadableDocument is returned when a document cannot be opened or decoded
	ErrUnreadableDocument = errors.New("unreadable document")
)

// Extractor produces the text layer of a document
type Extractor interface {
	// ExtractText returns the document text with one printed line per text line
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
	// Close releases resources held by the extractor
	Close() error
}

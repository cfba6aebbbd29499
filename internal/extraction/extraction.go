// Package extraction turns uploaded file bytes into plain text.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction is returned when the bytes cannot be parsed into text.
var ErrExtraction = errors.New("extraction failed")

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// Extractor extracts text from raw document bytes.
type Extractor interface {
	// ExtractText returns the plain text content of data.
	// Returns an error wrapping ErrExtraction when data is not a
	// parseable document.
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// DocumentExtractor extracts text from PDF files and passes UTF-8 plain
// text through unchanged.
type DocumentExtractor struct{}

// NewDocumentExtractor creates a DocumentExtractor.
func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{}
}

// ExtractText extracts the text content of data.
//
// PDF input is detected by its magic bytes and parsed page by page; any
// other input must be valid UTF-8 and is returned as-is.
func (e *DocumentExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrExtraction)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if bytes.HasPrefix(data, pdfMagic) {
		return extractPDF(data)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: input is neither a PDF nor valid UTF-8 text", ErrExtraction)
	}
	return string(data), nil
}

// extractPDF concatenates the text of all pages, one page per line group.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parsing PDF: %v", ErrExtraction, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: reading page %d: %v", ErrExtraction, i, err)
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

var _ Extractor = (*DocumentExtractor)(nil)

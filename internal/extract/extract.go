package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrUnreadableDocument marks input that is not a parseable PDF. Callers
// surface it at submission time; no job is ever created for such input.
var ErrUnreadableDocument = errors.New("unreadable document")

var pdfMagic = []byte("%PDF-")

const DefaultMaxChars = 50000

// Extractor converts PDF bytes into plain text. It holds no mutable state,
// so a single instance is safe for concurrent use across workers.
type Extractor struct {
	MaxChars int
}

func New(maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{MaxChars: maxChars}
}

// Extract returns the document's text, truncated to MaxChars runes keeping
// leading content. Same bytes always produce the same text.
func (e *Extractor) Extract(data []byte) (string, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fmt.Errorf("missing PDF header: %w", ErrUnreadableDocument)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open PDF: %v: %w", err, ErrUnreadableDocument)
	}
	defer doc.Close()

	var sb strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		pageText, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("page %d: %v: %w", n+1, err, ErrUnreadableDocument)
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text: %w", ErrUnreadableDocument)
	}

	return Truncate(text, e.MaxChars), nil
}

// Truncate caps s at max runes, preserving leading content. Rune-based so a
// multi-byte character is never split.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

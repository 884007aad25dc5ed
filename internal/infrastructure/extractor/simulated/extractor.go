package simulated

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

const DefaultDelay = 3 * time.Second

// Extractor stands in for a real OCR engine: it waits a fixed delay and
// returns a deterministic transcript describing the document.
type Extractor struct {
	delay time.Duration
	now   func() time.Time
}

func New(delay time.Duration) *Extractor {
	if delay < 0 {
		delay = 0
	}
	return &Extractor{delay: delay, now: time.Now}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OCR EXTRACTED TEXT FOR: %s\n\n", doc.OriginalName)
	b.WriteString("Property Grant Document Analysis:\n\n")
	fmt.Fprintf(&b, "- Document: %s\n", doc.OriginalName)
	fmt.Fprintf(&b, "- File Size: %d bytes\n", len(content))
	fmt.Fprintf(&b, "- File Type: %s\n", doc.MimeType)
	fmt.Fprintf(&b, "- Processed: %s\n", e.now().UTC().Format(time.RFC3339))
	b.WriteString("- Status: Successfully processed\n\n")
	b.WriteString("This is a simulation of OCR text extraction.\n")
	b.WriteString("In a production environment, this would contain actual text extracted from your property grant document.")
	if fields := labelledLines(content); len(fields) > 0 {
		b.WriteString("\n\nRecognized fields:\n")
		for _, line := range fields {
			fmt.Fprintf(&b, "%s\n", line)
		}
	}
	return b.String(), nil
}

const (
	maxLabelledLines = 32
	maxLabelLength   = 40
	maxLineLength    = 200
)

// labelledLines returns the "Label: value" lines of a text upload, so a
// transcribed grant saved as text reaches the field parser. Binary content
// yields nothing.
func labelledLines(content []byte) []string {
	if len(content) == 0 || !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		return nil
	}
	var out []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > maxLineLength {
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		label = strings.TrimSpace(label)
		if !ok || label == "" || len(label) > maxLabelLength || strings.TrimSpace(value) == "" {
			continue
		}
		if !isLabel(label) {
			continue
		}
		out = append(out, line)
		if len(out) == maxLabelledLines {
			break
		}
	}
	return out
}

func isLabel(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' && r != '.' && r != '\'' && r != '#' {
			return false
		}
	}
	return true
}

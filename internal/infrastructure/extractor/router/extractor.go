package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/core/ports"
)

// Extractor dispatches by MIME type. When the chosen extractor returns
// blank text and a fallback is configured, the fallback gets a turn.
type Extractor struct {
	byMime   map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func New(fallback ports.TextExtractor) *Extractor {
	return &Extractor{
		byMime:   make(map[string]ports.TextExtractor),
		fallback: fallback,
	}
}

func (e *Extractor) Handle(mimeType string, extractor ports.TextExtractor) *Extractor {
	e.byMime[strings.ToLower(strings.TrimSpace(mimeType))] = extractor
	return e
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	primary, ok := e.byMime[strings.ToLower(doc.MimeType)]
	if !ok {
		if e.fallback == nil {
			return "", domain.WrapError(domain.ErrUnsupportedType, "route extractor", fmt.Errorf("no extractor for mime type %s", doc.MimeType))
		}
		return e.fallback.Extract(ctx, doc, content)
	}

	text, err := primary.Extract(ctx, doc, content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" && e.fallback != nil {
		slog.Debug("extractor_fallback", "document_id", doc.ID, "mime_type", doc.MimeType)
		return e.fallback.Extract(ctx, doc, content)
	}
	return text, nil
}

package httpadapter

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

const (
	uploadField        = "document"
	uploadAccepted     = "File uploaded successfully. OCR processing started."
	multipartAllowance = 1 << 20
)

type DocumentSummary struct {
	ID           string                `json:"id"`
	OriginalName string                `json:"originalName"`
	MimeType     string                `json:"mimeType"`
	ByteSize     int64                 `json:"byteSize"`
	Status       domain.DocumentStatus `json:"status"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type DocumentView struct {
	DocumentSummary
	OwnerID         string                  `json:"ownerId"`
	ExtractedText   string                  `json:"extractedText"`
	IsProcessed     bool                    `json:"isProcessed"`
	PropertyDetails *domain.PropertyDetails `json:"propertyDetails"`
	UpdatedAt       time.Time               `json:"updatedAt"`
	ProcessedAt     *time.Time              `json:"processedAt,omitempty"`
}

type uploadResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Item    DocumentSummary `json:"item"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newDocumentSummary(doc *domain.Document) DocumentSummary {
	return DocumentSummary{
		ID:           doc.ID,
		OriginalName: doc.OriginalName,
		MimeType:     doc.MimeType,
		ByteSize:     doc.ByteSize,
		Status:       doc.Status,
		CreatedAt:    doc.CreatedAt,
	}
}

func newDocumentView(doc *domain.Document) DocumentView {
	return DocumentView{
		DocumentSummary: newDocumentSummary(doc),
		OwnerID:         doc.OwnerID,
		ExtractedText:   doc.ExtractedText,
		IsProcessed:     doc.IsProcessed,
		PropertyDetails: doc.PropertyDetails,
		UpdatedAt:       doc.UpdatedAt,
		ProcessedAt:     doc.ProcessedAt,
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+multipartAllowance)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordUpload("too_large", "", 0)
			writeError(w, r, domain.WrapError(domain.ErrFileTooLarge, "read multipart body", err))
			return
		}
		rt.recordUpload("missing_file", "", 0)
		writeError(w, r, domain.WrapError(domain.ErrMissingFile, "read multipart body", err))
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(r.Context(), ownerID, domain.UploadFile{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		rt.recordUpload(uploadOutcome(err), "", 0)
		writeError(w, r, err)
		return
	}

	rt.recordUpload("accepted", doc.MimeType, doc.ByteSize)
	writeJSON(w, http.StatusCreated, uploadResponse{
		Status:  "success",
		Message: uploadAccepted,
		Item:    newDocumentSummary(doc),
	})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.reader.ListByOwner(r.Context(), ownerIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]DocumentView, 0, len(docs))
	for i := range docs {
		views = append(views, newDocumentView(&docs[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	documentID := strings.TrimSpace(r.PathValue("document_id"))
	if documentID == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required")))
		return
	}
	doc, err := rt.reader.GetForOwner(r.Context(), ownerIDFromContext(r.Context()), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentView(doc))
}

func uploadOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrMissingFile):
		return "missing_file"
	case domain.IsKind(err, domain.ErrUnsupportedType):
		return "unsupported_type"
	case domain.IsKind(err, domain.ErrFileTooLarge):
		return "too_large"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

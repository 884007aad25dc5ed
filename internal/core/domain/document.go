package domain

import (
	"io"
	"time"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition encodes the only legal edges of the processing state machine.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type PropertyDetails struct {
	OwnerName        string     `json:"ownerName,omitempty"`
	PropertyAddress  string     `json:"propertyAddress,omitempty"`
	SurveyNumber     string     `json:"surveyNumber,omitempty"`
	Area             string     `json:"area,omitempty"`
	RegistrationDate *time.Time `json:"registrationDate,omitempty"`
}

func (p *PropertyDetails) Clone() *PropertyDetails {
	if p == nil {
		return nil
	}
	out := *p
	if p.RegistrationDate != nil {
		t := *p.RegistrationDate
		out.RegistrationDate = &t
	}
	return &out
}

type Document struct {
	ID              string           `json:"id"`
	OwnerID         string           `json:"ownerId"`
	OriginalName    string           `json:"originalName"`
	MimeType        string           `json:"mimeType"`
	ByteSize        int64            `json:"byteSize"`
	StorageKey      string           `json:"-"`
	Status          DocumentStatus   `json:"status"`
	ExtractedText   string           `json:"extractedText"`
	IsProcessed     bool             `json:"isProcessed"`
	PropertyDetails *PropertyDetails `json:"propertyDetails,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	EnqueuedAt      *time.Time       `json:"-"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.PropertyDetails = d.PropertyDetails.Clone()
	if d.EnqueuedAt != nil {
		t := *d.EnqueuedAt
		out.EnqueuedAt = &t
	}
	if d.ProcessedAt != nil {
		t := *d.ProcessedAt
		out.ProcessedAt = &t
	}
	return &out
}

// StatusPatch is applied by a store as one compare-and-set on From.
type StatusPatch struct {
	From            DocumentStatus
	To              DocumentStatus
	ExtractedText   string
	PropertyDetails *PropertyDetails
	At              time.Time
}

// Apply validates the patch against doc and mutates doc in place.
func (p StatusPatch) Apply(doc *Document) error {
	if doc.Status != p.From || !CanTransition(p.From, p.To) {
		return WrapError(ErrInvalidTransition, "apply status patch",
			transitionError{id: doc.ID, current: doc.Status, from: p.From, to: p.To})
	}
	at := p.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	doc.Status = p.To
	doc.UpdatedAt = at
	switch p.To {
	case StatusCompleted:
		doc.ExtractedText = p.ExtractedText
		doc.IsProcessed = true
		doc.PropertyDetails = p.PropertyDetails.Clone()
		doc.ProcessedAt = &at
	case StatusFailed:
		doc.ExtractedText = p.ExtractedText
		doc.IsProcessed = false
		doc.PropertyDetails = nil
		doc.ProcessedAt = &at
	}
	return nil
}

// Validate checks the patch payload independent of any stored record.
func (p StatusPatch) Validate() error {
	if !CanTransition(p.From, p.To) {
		return WrapError(ErrInvalidTransition, "validate status patch",
			transitionError{from: p.From, to: p.To})
	}
	if p.To.IsTerminal() && p.ExtractedText == "" {
		return WrapError(ErrInvalidInput, "validate status patch",
			errEmptyTerminalText)
	}
	if p.To != StatusCompleted && p.PropertyDetails != nil {
		return WrapError(ErrInvalidInput, "validate status patch",
			errDetailsOnlyOnCompletion)
	}
	return nil
}

// UploadFile is the intake payload; Content is read at most once.
type UploadFile struct {
	Name     string
	MimeType string
	Size     int64
	Content  io.Reader
}

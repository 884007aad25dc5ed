package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

const (
	documentColumns = `id, owner_id, original_name, mime_type, byte_size, storage_key, status, extracted_text,
	is_processed, property_details, created_at, updated_at, enqueued_at, processed_at`

	staleBatchLimit = 500
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.Status != domain.StatusPending {
		return domain.WrapError(domain.ErrInvalidInput, "insert document", fmt.Errorf("initial status %q", doc.Status))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, original_name, mime_type, byte_size, storage_key, status, created_at, updated_at, enqueued_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.OwnerID, doc.OriginalName, doc.MimeType, doc.ByteSize, doc.StorageKey,
		string(doc.Status), doc.CreatedAt, doc.UpdatedAt, doc.EnqueuedAt,
	)
	if err != nil {
		return wrapStoreError("insert document", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, wrapStoreError("scan document", err)
	}
	return &doc, nil
}

// UpdateStatus is a single compare-and-set on the current status. When no
// row matches, a follow-up read tells a missing id from a stale patch.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, patch domain.StatusPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	at := patch.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var (
		res sql.Result
		err error
	)
	if patch.To.IsTerminal() {
		details, marshalErr := marshalDetails(patch)
		if marshalErr != nil {
			return marshalErr
		}
		res, err = r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, extracted_text = $4, is_processed = $5, property_details = $6, updated_at = $7, processed_at = $7
WHERE id = $1 AND status = $2
`, id, string(patch.From), string(patch.To), patch.ExtractedText, patch.To == domain.StatusCompleted, details, at)
	} else {
		res, err = r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
`, id, string(patch.From), string(patch.To), at)
	}
	if err != nil {
		return wrapStoreError("update document status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreError("update document status rows affected", err)
	}
	if affected > 0 {
		return nil
	}
	return r.explainMissedUpdate(ctx, id, patch)
}

func (r *DocumentRepository) explainMissedUpdate(ctx context.Context, id string, patch domain.StatusPatch) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
		}
		return wrapStoreError("read document status", err)
	}
	return domain.WrapError(domain.ErrInvalidTransition, "update document status",
		fmt.Errorf("id=%s current=%s patch=%s->%s", id, current, patch.From, patch.To))
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
`, ownerID)
	if err != nil {
		return nil, wrapStoreError("list documents", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListStale(ctx context.Context, status domain.DocumentStatus, updatedBefore time.Time) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3
`, string(status), updatedBefore, staleBatchLimit)
	if err != nil {
		return nil, wrapStoreError("list stale documents", err)
	}
	return collectDocuments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc         domain.Document
		status      string
		detailsRaw  []byte
		enqueuedAt  sql.NullTime
		processedAt sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.OriginalName, &doc.MimeType, &doc.ByteSize, &doc.StorageKey,
		&status, &doc.ExtractedText, &doc.IsProcessed, &detailsRaw,
		&doc.CreatedAt, &doc.UpdatedAt, &enqueuedAt, &processedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Status = domain.DocumentStatus(status)
	if len(detailsRaw) > 0 {
		var details domain.PropertyDetails
		if err := json.Unmarshal(detailsRaw, &details); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal property details: %w", err)
		}
		doc.PropertyDetails = &details
	}
	if enqueuedAt.Valid {
		t := enqueuedAt.Time
		doc.EnqueuedAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	return doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, wrapStoreError("scan document", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("iterate documents", err)
	}
	return out, nil
}

// marshalDetails returns an untyped nil for SQL NULL.
func marshalDetails(patch domain.StatusPatch) (any, error) {
	if patch.To != domain.StatusCompleted || patch.PropertyDetails == nil {
		return nil, nil
	}
	raw, err := json.Marshal(patch.PropertyDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal property details: %w", err)
	}
	return raw, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

const documentsSchemaLock int64 = 2026051001

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	return withSchemaLock(ctx, r.db, documentsSchemaLock, `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	raw_content TEXT NOT NULL,
	doc_type TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`)
}

// Create inserts a document or replaces the stored version of the same id
// and owner. A row owned by someone else is never overwritten.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, title, raw_content, doc_type, version, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	raw_content = EXCLUDED.raw_content,
	doc_type = EXCLUDED.doc_type,
	version = EXCLUDED.version,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
WHERE documents.owner_id = EXCLUDED.owner_id
`,
		doc.ID, doc.OwnerID, doc.Title, doc.RawContent, doc.DocType, doc.Version,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert document rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "upsert document", fmt.Errorf("id %s belongs to another owner", doc.ID))
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner_id, title, raw_content, doc_type, version, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Title, &doc.RawContent, &doc.DocType, &doc.Version,
		&status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
	}
	return nil
}

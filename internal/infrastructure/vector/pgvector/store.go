package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pgv "github.com/pgvector/pgvector-go"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

const schemaLockID int64 = 2026051003

// Store keeps chunks in a Postgres table with a pgvector column and a
// generated tsvector, and fuses both rankings in SQL.
type Store struct {
	db        *sql.DB
	dimension int
	language  string
}

func NewStore(db *sql.DB, dimension int, language string) *Store {
	if language == "" {
		language = "english"
	}
	return &Store{db: db, dimension: dimension, language: language}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return domain.WrapError(domain.ErrConfiguration, "pgvector schema", errors.New("embedding dimension must be positive"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	raw_content TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	doc_type TEXT NOT NULL DEFAULT '',
	token_count INTEGER NOT NULL DEFAULT 0,
	embedding vector(%d) NOT NULL,
	search_tsv tsvector GENERATED ALWAYS AS (to_tsvector('%s', content)) STORED,
	doc_created_at TIMESTAMPTZ,
	doc_updated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_owner ON document_chunks(owner_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_tsv ON document_chunks USING GIN (search_tsv);
CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, s.dimension, s.language)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ReplaceChunks swaps the document's chunk set in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil {
		return domain.WrapError(domain.ErrInvalidInput, "replace chunks", errors.New("document is nil"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO document_chunks (
	id, document_id, owner_id, chunk_index, content, raw_content, title, section, doc_type,
	token_count, embedding, doc_created_at, doc_updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "replace chunks", fmt.Errorf("chunk %d has no embedding", ch.Index))
		}
		_, err := stmt.ExecContext(ctx,
			ch.ID, doc.ID, doc.OwnerID, ch.Index, ch.Content, ch.RawContent, doc.Title, ch.Section, doc.DocType,
			ch.TokenCount, pgv.NewVector(ch.Embedding), doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks tx: %w", err)
	}
	return nil
}

func (s *Store) SimilaritySearch(
	ctx context.Context,
	ownerID string,
	vector []float32,
	limit int,
	threshold float64,
) ([]domain.IndexCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, chunk_index, content, title, section, doc_type,
	doc_created_at, doc_updated_at, 1 - (embedding <=> $2) AS similarity
FROM document_chunks
WHERE owner_id = $1 AND 1 - (embedding <=> $2) >= $3
ORDER BY embedding <=> $2
LIMIT $4
`, ownerID, pgv.NewVector(vector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IndexCandidate, 0, limit)
	for rows.Next() {
		var c domain.IndexCandidate
		var created, updated sql.NullTime
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Title, &c.Section, &c.DocType,
			&created, &updated, &c.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		c.DocCreatedAt, c.DocUpdatedAt = created.Time, updated.Time
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity rows: %w", err)
	}
	return out, nil
}

// HybridSearch ranks up to limit candidates per leg and fuses them with
// RRF: sum of 1/(k+rank) over the legs a chunk appears in.
func (s *Store) HybridSearch(
	ctx context.Context,
	ownerID string,
	queryText string,
	vector []float32,
	limit int,
	rrfK int,
) ([]domain.HybridCandidate, error) {
	query := fmt.Sprintf(`
WITH semantic AS (
	SELECT id, 1 - (embedding <=> $2) AS similarity,
		ROW_NUMBER() OVER (ORDER BY embedding <=> $2) AS rank
	FROM document_chunks
	WHERE owner_id = $1
	ORDER BY embedding <=> $2
	LIMIT $4
),
keyword AS (
	SELECT id,
		ROW_NUMBER() OVER (ORDER BY ts_rank_cd(search_tsv, plainto_tsquery('%[1]s', $3)) DESC, id) AS rank
	FROM document_chunks
	WHERE owner_id = $1 AND search_tsv @@ plainto_tsquery('%[1]s', $3)
	ORDER BY rank
	LIMIT $4
),
fused AS (
	SELECT COALESCE(s.id, k.id) AS id,
		s.similarity, s.rank AS semantic_rank, k.rank AS keyword_rank,
		COALESCE(1.0 / ($5 + s.rank), 0) + COALESCE(1.0 / ($5 + k.rank), 0) AS rrf_score
	FROM semantic s
	FULL OUTER JOIN keyword k ON s.id = k.id
)
SELECT c.id, c.document_id, c.chunk_index, c.content, c.title, c.section, c.doc_type,
	c.doc_created_at, c.doc_updated_at,
	f.similarity, f.semantic_rank, f.keyword_rank, f.rrf_score
FROM fused f
JOIN document_chunks c ON c.id = f.id
ORDER BY f.rrf_score DESC, LEAST(COALESCE(f.semantic_rank, $4 + 1), COALESCE(f.keyword_rank, $4 + 1)), c.document_id, c.chunk_index
LIMIT $4
`, s.language)

	rows, err := s.db.QueryContext(ctx, query, ownerID, pgv.NewVector(vector), queryText, limit, rrfK)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.HybridCandidate, 0, limit)
	for rows.Next() {
		var c domain.HybridCandidate
		var created, updated sql.NullTime
		var similarity sql.NullFloat64
		var semanticRank, keywordRank sql.NullInt64
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Title, &c.Section, &c.DocType,
			&created, &updated, &similarity, &semanticRank, &keywordRank, &c.RRFScore,
		); err != nil {
			return nil, fmt.Errorf("scan hybrid row: %w", err)
		}
		c.DocCreatedAt, c.DocUpdatedAt = created.Time, updated.Time
		c.SemanticSimilarity = similarity.Float64
		c.SemanticRank = int(semanticRank.Int64)
		c.KeywordRank = int(keywordRank.Int64)
		c.Similarity = c.RRFScore
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hybrid rows: %w", err)
	}
	return out, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qianghan/docvault/cmd/docvault/models"
	"github.com/qianghan/docvault/common/apperrors"
	"github.com/qianghan/docvault/common/db"
)

// Schema creates the metadata tables. Run through the bootstrap DB init hook.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL,
	latest_version INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	id UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	sequence_number INT NOT NULL,
	blob_path TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	created_by TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_versions_document ON versions(document_id);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
`

// querier is satisfied by both *pgxpool.Pool (via db.DB) and pgx.Tx, so the
// same query methods serve plain and transaction-bound stores.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the pgx-backed metadata store.
type PostgresStore struct {
	q  querier
	db *db.DB // nil when transaction-bound
}

// NewPostgresStore creates a metadata store on the given connection pool.
func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{q: database.Pool, db: database}
}

// InitSchema creates the tables if they do not exist.
func InitSchema(ctx context.Context, database *db.DB) error {
	if _, err := database.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create metadata schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `
		SELECT id, owner_id, latest_version, status, metadata, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	doc := &models.Document{}
	var metadata []byte
	err := s.q.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.LatestVersion,
		&doc.Status,
		&metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("document", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode document metadata: %w", err)
	}

	return doc, nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, latest_version, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			latest_version = EXCLUDED.latest_version,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode document metadata: %w", err)
	}

	_, err = s.q.Exec(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.LatestVersion,
		doc.Status,
		metadata,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	query := `
		SELECT id, owner_id, latest_version, status, metadata, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at
	`

	rows, err := s.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc := &models.Document{}
		var metadata []byte
		if err := rows.Scan(
			&doc.ID,
			&doc.OwnerID,
			&doc.LatestVersion,
			&doc.Status,
			&metadata,
			&doc.CreatedAt,
			&doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode document metadata: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return docs, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFound("document", id.String())
	}
	return nil
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata models.Metadata) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tag, err := s.q.Exec(ctx, `UPDATE documents SET metadata = $2, updated_at = NOW() WHERE id = $1`, id, encoded)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFound("document", id.String())
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, docID uuid.UUID) ([]*models.Version, error) {
	query := `
		SELECT id, document_id, sequence_number, blob_path, size_bytes, created_by, comment, metadata, created_at
		FROM versions
		WHERE document_id = $1
		ORDER BY sequence_number
	`

	rows, err := s.q.Query(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}

	return versions, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, docID, versionID uuid.UUID) (*models.Version, error) {
	query := `
		SELECT id, document_id, sequence_number, blob_path, size_bytes, created_by, comment, metadata, created_at
		FROM versions
		WHERE document_id = $1 AND id = $2
	`

	v, err := scanVersion(s.q.QueryRow(ctx, query, docID, versionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("version", versionID.String())
	}
	return v, err
}

func (s *PostgresStore) GetVersionByNumber(ctx context.Context, docID uuid.UUID, seq int) (*models.Version, error) {
	query := `
		SELECT id, document_id, sequence_number, blob_path, size_bytes, created_by, comment, metadata, created_at
		FROM versions
		WHERE document_id = $1 AND sequence_number = $2
	`

	v, err := scanVersion(s.q.QueryRow(ctx, query, docID, seq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("version", "sequence "+strconv.Itoa(seq))
	}
	return v, err
}

func (s *PostgresStore) SaveVersion(ctx context.Context, v *models.Version) error {
	query := `
		INSERT INTO versions (id, document_id, sequence_number, blob_path, size_bytes, created_by, comment, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode version metadata: %w", err)
	}

	_, err = s.q.Exec(ctx, query,
		v.ID,
		v.DocumentID,
		v.SequenceNumber,
		v.BlobPath,
		v.SizeBytes,
		v.CreatedBy,
		v.Comment,
		metadata,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save version: %w", err)
	}

	return nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, docID, versionID uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM versions WHERE document_id = $1 AND id = $2`, docID, versionID)
	if err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFound("version", versionID.String())
	}
	return nil
}

// WithTx runs fn against a transaction-bound store. A nested WithTx joins
// the enclosing transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperrors.WrapStorage("transaction begin", "metadata", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(ctx, &PostgresStore{q: tx}); err != nil {
		return apperrors.WrapStorage("transaction", "metadata", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.WrapStorage("transaction commit", "metadata", err)
	}

	return nil
}

func scanVersion(row pgx.Row) (*models.Version, error) {
	v := &models.Version{}
	var metadata []byte
	err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.SequenceNumber,
		&v.BlobPath,
		&v.SizeBytes,
		&v.CreatedBy,
		&v.Comment,
		&metadata,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode version metadata: %w", err)
	}

	return v, nil
}

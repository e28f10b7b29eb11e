// Package pg backs the dense side of the knowledge base with PostgreSQL and
// the pgvector extension. It implements retrieval.DenseIndex and
// retrieval.DocumentStore, so a hybrid retriever can pair it with any sparse
// index.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/queryweave/retrieval"
	"github.com/sweetpotato0/queryweave/vector"
)

// Config holds the connection and schema settings.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // embedding dimension, must match the embedder
	TableName string // defaults to kb_documents
}

// DefaultConfig returns settings for a local development database.
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "queryweave",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "kb_documents",
	}
}

// Index stores documents and their embeddings in a pgvector table.
type Index struct {
	db        *sql.DB
	embedder  vector.Embedder
	dimension int
	table     string
}

// New connects to PostgreSQL, ensures the schema exists and returns the index.
// The embedder is used for both ingestion and query-time search.
func New(config *Config, embedder vector.Embedder) (*Index, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if config.Dimension > 0 && embedder.Dimension() != config.Dimension {
		return nil, fmt.Errorf("embedder dimension %d does not match configured dimension %d",
			embedder.Dimension(), config.Dimension)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping PostgreSQL: %w", err)
	}

	ix := &Index{
		db:        db,
		embedder:  embedder,
		dimension: embedder.Dimension(),
		table:     config.TableName,
	}
	if ix.table == "" {
		ix.table = "kb_documents"
	}
	if err := ix.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("setup pgvector schema: %w", err)
	}
	return ix, nil
}

func (ix *Index) setup(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		content TEXT NOT NULL,
		metadata JSONB,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, ix.table, ix.dimension)
	if _, err := ix.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Add embeds and upserts documents.
func (ix *Index) Add(ctx context.Context, docs ...retrieval.Document) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document ID is required")
		}
		vec, err := ix.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		if len(vec) != ix.dimension {
			return fmt.Errorf("document %s: embedding dimension mismatch: expected %d, got %d",
				doc.ID, ix.dimension, len(vec))
		}

		var metadata any
		if doc.Metadata != nil {
			encoded, err := json.Marshal(doc.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", doc.ID, err)
			}
			metadata = string(encoded)
		}

		updatedAt := time.Now().UTC()
		if doc.UpdatedAt != nil {
			updatedAt = *doc.UpdatedAt
		}

		query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4::vector, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
		`, ix.table)
		if _, err := ix.db.ExecContext(ctx, query, doc.ID, doc.Content, metadata, vectorToString(vec), updatedAt); err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// SearchDense implements retrieval.DenseIndex using the cosine distance
// operator, so ordering matches in-process cosine ranking.
func (ix *Index) SearchDense(ctx context.Context, text string, k int) ([]string, error) {
	if k <= 0 {
		k = 10
	}
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	query := fmt.Sprintf(`
	SELECT id
	FROM %s
	ORDER BY embedding <=> $1::vector, id
	LIMIT $2
	`, ix.table)
	rows, err := ix.db.QueryContext(ctx, query, vectorToString(vec), k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, k)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Fetch implements retrieval.DocumentStore.
func (ix *Index) Fetch(ctx context.Context, id string) (retrieval.Document, error) {
	query := fmt.Sprintf(`
	SELECT id, content, metadata, updated_at
	FROM %s
	WHERE id = $1
	`, ix.table)

	var doc retrieval.Document
	var metadata sql.NullString
	var updatedAt time.Time
	err := ix.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Content, &metadata, &updatedAt)
	if err == sql.ErrNoRows {
		return retrieval.Document{}, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		return retrieval.Document{}, fmt.Errorf("fetch document %s: %w", id, err)
	}

	doc.UpdatedAt = &updatedAt
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return retrieval.Document{}, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}
	return doc, nil
}

// Delete removes a document by ID.
func (ix *Index) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", ix.table)
	result, err := ix.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

// Count returns the number of stored documents.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", ix.table)
	if err := ix.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// Close releases the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func vectorToString(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

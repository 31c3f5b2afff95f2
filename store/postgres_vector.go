package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/medrag"
)

// DBPool is the subset of pgxpool.Pool the store needs. Tests substitute a
// pgxmock pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresVectorStore persists documents and their embeddings in PostgreSQL.
// Embeddings are stored as float4 arrays and ranked by cosine similarity on
// the client, which keeps the schema free of extensions and is adequate for
// corpora in the tens of thousands of chunks.
type PostgresVectorStore struct {
	pool      DBPool
	tableName string
	embedder  medrag.Embedder
}

var _ medrag.VectorStore = (*PostgresVectorStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "documents"
	Embedder   medrag.Embedder
}

// NewPostgresVectorStore creates a new Postgres vector store and ensures
// its schema exists.
func NewPostgresVectorStore(ctx context.Context, opts PostgresOptions) (*PostgresVectorStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	store := NewPostgresVectorStoreWithPool(pool, opts.TableName, opts.Embedder)
	if err := store.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresVectorStoreWithPool creates a store over an existing pool.
// Useful for testing with mocks.
func NewPostgresVectorStoreWithPool(pool DBPool, tableName string, embedder medrag.Embedder) *PostgresVectorStore {
	if tableName == "" {
		tableName = "documents"
	}
	return &PostgresVectorStore{
		pool:      pool,
		tableName: tableName,
		embedder:  embedder,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresVectorStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding FLOAT4[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Add upserts documents, embedding any that arrive without an embedding.
func (s *PostgresVectorStore) Add(ctx context.Context, documents []medrag.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
	`, s.tableName)

	for _, doc := range documents {
		embedding := doc.Embedding
		if len(embedding) == 0 {
			if s.embedder == nil {
				return fmt.Errorf("no embedder configured and document %q has no embedding", doc.ID)
			}
			var err error
			embedding, err = s.embedder.EmbedDocument(ctx, doc.Text)
			if err != nil {
				return fmt.Errorf("failed to embed document: %w", err)
			}
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		if _, err := s.pool.Exec(ctx, query, doc.ID, doc.Text, metadataJSON, embedding); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}
	return nil
}

// Search loads all stored embeddings and ranks them by cosine similarity.
func (s *PostgresVectorStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]medrag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	query := fmt.Sprintf("SELECT id, content, metadata, embedding FROM %s", s.tableName)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []medrag.SearchResult
	for rows.Next() {
		var (
			id           string
			content      string
			metadataJSON []byte
			embedding    []float32
		)
		if err := rows.Scan(&id, &content, &metadataJSON, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		var metadata map[string]any
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		results = append(results, medrag.SearchResult{
			ID:       id,
			Text:     content,
			Score:    cosineSimilarity32(queryEmbedding, embedding),
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count reports the number of stored documents.
func (s *PostgresVectorStore) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s", s.tableName)

	var count int
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Delete removes documents by ID.
func (s *PostgresVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.tableName)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresVectorStore) Close() error {
	s.pool.Close()
	return nil
}

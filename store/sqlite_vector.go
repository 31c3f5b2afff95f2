package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/medrag"
)

// SqliteVectorStore persists documents and their embeddings in a SQLite
// file, for single-node deployments that want durability without a
// database server. Embeddings are stored as JSON and ranked in memory.
type SqliteVectorStore struct {
	db        *sql.DB
	tableName string
	embedder  medrag.Embedder
}

var _ medrag.VectorStore = (*SqliteVectorStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "documents"
	Embedder  medrag.Embedder
}

// NewSqliteVectorStore opens (or creates) a SQLite vector store.
func NewSqliteVectorStore(opts SqliteOptions) (*SqliteVectorStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "documents"
	}

	store := &SqliteVectorStore{
		db:        db,
		tableName: tableName,
		embedder:  opts.Embedder,
	}

	if err := store.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteVectorStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Add upserts documents, embedding any that arrive without an embedding.
func (s *SqliteVectorStore) Add(ctx context.Context, documents []medrag.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET content = excluded.content, metadata = excluded.metadata, embedding = excluded.embedding
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
		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}

		if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.Text, string(metadataJSON), string(embeddingJSON)); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}
	return nil
}

// Search loads all stored embeddings and ranks them by cosine similarity.
func (s *SqliteVectorStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]medrag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	query := fmt.Sprintf("SELECT id, content, metadata, embedding FROM %s", s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []medrag.SearchResult
	for rows.Next() {
		var (
			id            string
			content       string
			metadataJSON  sql.NullString
			embeddingJSON string
		)
		if err := rows.Scan(&id, &content, &metadataJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}

		var metadata map[string]any
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &metadata); err != nil {
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
func (s *SqliteVectorStore) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s", s.tableName)

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Delete removes documents by ID.
func (s *SqliteVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", s.tableName, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SqliteVectorStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/medrag"
	"github.com/stretchr/testify/assert"
)

func TestPostgresVectorStore_Add(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	embedder := NewMockEmbedder(8)
	s := NewPostgresVectorStoreWithPool(mock, "documents", embedder)

	doc := medrag.Document{
		ID:       "d1",
		Text:     "trocar placement under direct vision",
		Metadata: map[string]any{"source": "manual.pdf"},
	}
	embedding, _ := embedder.EmbedDocument(context.Background(), doc.Text)
	metadataJSON, _ := json.Marshal(doc.Metadata)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(doc.ID, doc.Text, metadataJSON, embedding).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.Add(context.Background(), []medrag.Document{doc})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVectorStore_AddWithoutEmbedder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresVectorStoreWithPool(mock, "documents", nil)
	err = s.Add(context.Background(), []medrag.Document{{ID: "d1", Text: "text"}})
	assert.Error(t, err)
}

func TestPostgresVectorStore_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresVectorStoreWithPool(mock, "documents", nil)

	rows := pgxmock.NewRows([]string{"id", "content", "metadata", "embedding"}).
		AddRow("d1", "irrelevant", []byte(`{}`), []float32{0, 1}).
		AddRow("d2", "relevant", []byte(`{"page":3}`), []float32{1, 0})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, metadata, embedding FROM documents")).
		WillReturnRows(rows)

	results, err := s.Search(context.Background(), []float32{1, 0}, 1)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, float64(3), results[0].Metadata["page"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVectorStore_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresVectorStoreWithPool(mock, "documents", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM documents")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVectorStore_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	s := NewPostgresVectorStoreWithPool(mock, "documents", nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = ANY($1)")).
		WithArgs([]string{"d1", "d2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	assert.NoError(t, s.Delete(context.Background(), []string{"d1", "d2"}))
	assert.NoError(t, s.Delete(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

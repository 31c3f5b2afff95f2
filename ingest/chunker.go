package ingest

import (
	"fmt"
	"strings"

	"github.com/smallnest/medrag"
)

// Default chunk geometry, in words. 400 words stays well under the input
// limit of clinical BERT-family embedding models.
const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 50
)

// Chunker splits text into word-bounded chunks, preferring paragraph and
// sentence boundaries over hard word cuts.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the approximate words per chunk.
func WithChunkSize(words int) ChunkerOption {
	return func(c *Chunker) {
		if words > 0 {
			c.chunkSize = words
		}
	}
}

// WithChunkOverlap sets how many trailing words of a chunk are repeated at
// the start of the next one.
func WithChunkOverlap(words int) ChunkerOption {
	return func(c *Chunker) {
		if words >= 0 {
			c.chunkOverlap = words
		}
	}
}

// NewChunker creates a Chunker with the default geometry.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunkOverlap >= c.chunkSize {
		c.chunkOverlap = c.chunkSize / 4
	}
	return c
}

// ChunkText splits text into chunks of at most chunkSize words. Paragraphs
// are packed whole while they fit; oversized paragraphs split on sentence
// boundaries, and oversized sentences split on words.
func (c *Chunker) ChunkText(text string) []string {
	var pieces []string
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if wordCount(paragraph) <= c.chunkSize {
			pieces = append(pieces, paragraph)
			continue
		}
		for _, sentence := range splitSentences(paragraph) {
			if wordCount(sentence) <= c.chunkSize {
				pieces = append(pieces, sentence)
				continue
			}
			pieces = append(pieces, c.splitByWords(sentence)...)
		}
	}

	var chunks []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))
		if c.chunkOverlap > 0 {
			words := strings.Fields(strings.Join(current, " "))
			if len(words) > c.chunkOverlap {
				words = words[len(words)-c.chunkOverlap:]
			}
			current = []string{strings.Join(words, " ")}
		} else {
			current = nil
		}
	}

	count := 0
	for _, piece := range pieces {
		n := wordCount(piece)
		if count > 0 && count+n > c.chunkSize {
			flush()
			count = wordCount(strings.Join(current, " "))
		}
		current = append(current, piece)
		count += n
	}
	// The flush seeds current with the overlap, so after the loop current
	// always carries at least one fresh piece.
	if len(pieces) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// ChunkDocuments splits each document and stamps the chunks with their
// position and parent.
func (c *Chunker) ChunkDocuments(docs []medrag.Document) []medrag.Document {
	chunked := make([]medrag.Document, 0, len(docs))
	for _, doc := range docs {
		texts := c.ChunkText(doc.Text)
		for i, text := range texts {
			metadata := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = i
			metadata["chunk_total"] = len(texts)
			metadata["parent_id"] = doc.ID

			chunked = append(chunked, medrag.Document{
				ID:        fmt.Sprintf("%s_chunk_%d", doc.ID, i),
				Text:      text,
				Metadata:  metadata,
				CreatedAt: doc.CreatedAt,
			})
		}
	}
	return chunked
}

func (c *Chunker) splitByWords(text string) []string {
	words := strings.Fields(text)
	var out []string
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = c.chunkSize
	}
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// splitSentences splits on terminal punctuation followed by whitespace.
// Abbreviations produce occasional false splits, which only move a chunk
// boundary and never lose text.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' && runes[i+1] != '\t' {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

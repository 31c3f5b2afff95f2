// Package retriever implements the retrieval side of the pipeline: dense
// vector search, knowledge graph neighborhoods, weighted hybrid fusion of
// the two, and multi-step aggregation across decomposed sub-queries.
package retriever

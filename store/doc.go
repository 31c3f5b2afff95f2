// Package store provides the storage backends for retrieval and
// verification: in-memory, PostgreSQL, and SQLite vector stores, plus
// in-memory and FalkorDB knowledge graphs.
//
// The in-memory implementations are the defaults for tests and small
// corpora. PostgresVectorStore and SqliteVectorStore persist documents
// with their embeddings; FalkorGraph speaks GRAPH.QUERY over the redis
// protocol to a FalkorDB server.
//
// # Choosing a backend
//
// Use MemoryVectorStore and MemoryGraph when:
//   - You are writing tests
//   - The corpus fits comfortably in memory and need not survive restarts
//
// Use SqliteVectorStore when:
//   - You want durability without running a database server
//
// Use PostgresVectorStore when:
//   - Multiple processes share the corpus
//   - You need enterprise-grade persistence (backups, replication)
//
// Use FalkorGraph when:
//   - The knowledge graph is maintained outside the process
//   - You need cypher-level access to the same graph from other tools
package store

// Package medrag implements graph-verified retrieval-augmented generation
// for surgical education content.
//
// The package fuses two retrieval modalities, dense vector similarity and
// knowledge graph traversal, and verifies the factual claims of a generated
// answer against the graph before the answer reaches a user.
//
// # Components
//
// decompose
// Splits complex queries into 2-4 focused sub-queries via a constrained LLM
// call, with a deterministic heuristic gate and a safe single-query fallback.
//
// retriever
// Hybrid vector+graph retrieval with configurable modality weights, content
// fingerprint deduplication, and a multi-step aggregator that fans out over
// decomposed sub-queries and boosts items retrieved by more than one.
//
// confidence
// Composite confidence scoring over retrieval similarity, graph entity
// coverage, cross-source agreement, and verification rate.
//
// verify
// Claim extraction, graph verification, hallucination classification, and the
// abstention policy that decides whether an answer is safe to surface.
//
// store
// Vector index and knowledge graph implementations: in-memory, SQLite,
// Postgres (pgx), and FalkorDB over the redis protocol.
//
// extract
// Entity and claim extraction, both LLM-backed (OpenAI) and dictionary-based.
//
// ingest
// Text normalization, chunking, and graph ingestion for building the stores.
//
// pipeline
// The assembled query surface: Retrieve, Confidence, and Verify over the
// injected stores and services.
//
// # Quick start
//
//	vec := store.NewMemoryVectorStore(embedder)
//	kg := store.NewMemoryGraph()
//
//	p, _ := pipeline.New(pipeline.Config{
//		Vector:    vec,
//		Graph:     kg,
//		Embedder:  embedder,
//		Entities:  extract.NewDictionaryExtractor(),
//		Claims:    extract.NewOpenAIExtractor(apiKey),
//		Decompose: decompose.New(decompose.Config{APIKey: apiKey}),
//	})
//
//	results, _ := p.Retrieve(ctx, "steps of laparoscopic appendectomy", 5, pipeline.RetrieveOptions{UseGraph: true})
//	report, _ := p.Verify(ctx, query, answer)
//	if report.Abstention.ShouldAbstain {
//		fmt.Println(verify.FormatAbstention(report))
//	}
//
// All external stores and services are injected dependencies; each query is
// an independent, stateless pipeline instance. External call failures degrade
// to neutral defaults (empty candidates, single-subquery plans, empty claim
// sets) rather than aborting a query.
package medrag // import "github.com/smallnest/medrag"

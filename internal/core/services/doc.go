// Package services implements the driving port interfaces.
// Services contain the ranking engine and orchestrate calls to
// driven ports (adapters).
//
// The engine is split into:
//   - DocumentGraph: link graph and PageRank importance
//   - EmbeddingIndex: chunk vectors and similarity search
//   - Fuse, ReRanker, QuerySegmenter, ResultClusterer: the ranking pipeline
//   - SearchService: hybrid retrieval orchestration with a result cache
//   - LiveIndexer: full rebuilds and incremental maintenance
//   - UpdateScheduler: throttle and debounce coalescing
//
// Services are pure Go with no CGO.
package services

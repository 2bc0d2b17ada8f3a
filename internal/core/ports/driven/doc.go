// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Corpus: Enumerates documents and emits change notifications
//   - ConfigStore: Application configuration
//   - EmbeddingStore, GraphStore: Versioned snapshot persistence
//   - PostProcessorPipeline: Document chunking
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - SearchEngine: Keyword search. Without it, only semantic retrieval runs.
//   - EmbeddingService: Generates vector embeddings. Without it, semantic retrieval is disabled.
//   - UsageProvider: Behavioural signals. Without it, usage signals score 0.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven

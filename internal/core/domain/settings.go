package domain

import "time"

const unknownDescription = "Unknown"

// SearchMode defines which retrieval sources a search uses.
type SearchMode string

// Available search modes.
const (
	// SearchModeKeyword uses only keyword/full-text search.
	SearchModeKeyword SearchMode = "keyword"

	// SearchModeSemantic uses only embedding similarity search.
	SearchModeSemantic SearchMode = "semantic"

	// SearchModeHybrid runs both sources and fuses them.
	SearchModeHybrid SearchMode = "hybrid"
)

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeKeyword, SearchModeSemantic, SearchModeHybrid:
		return true
	default:
		return false
	}
}

// UsesKeyword returns true if this mode queries the keyword engine.
// An empty mode is treated as hybrid.
func (m SearchMode) UsesKeyword() bool {
	return m == "" || m == SearchModeKeyword || m == SearchModeHybrid
}

// UsesSemantic returns true if this mode queries the embedding index.
func (m SearchMode) UsesSemantic() bool {
	return m == "" || m == SearchModeSemantic || m == SearchModeHybrid
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeKeyword:
		return "Keyword (full-text search)"
	case SearchModeSemantic:
		return "Semantic (embedding search)"
	case SearchModeHybrid, "":
		return "Hybrid (keyword + semantic, fused)"
	default:
		return unknownDescription
	}
}

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI"
	case "":
		return "None (keyword search only)"
	default:
		return unknownDescription
	}
}

// AllEmbeddingProviders returns all available embedding providers.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider. Empty disables semantic search.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or compatible APIs).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// MaxConcurrency bounds concurrent embedding requests.
	MaxConcurrency int

	// Adaptive shrinks and grows concurrency with observed latency.
	Adaptive bool

	// MaxAttempts is the retry budget per embedding request.
	MaxAttempts int

	// InitialBackoff is the first retry delay; later delays grow exponentially.
	InitialBackoff time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// FusionSettings configures reciprocal rank fusion.
type FusionSettings struct {
	// K is the RRF rank offset.
	K float64

	KeywordWeight  float64
	SemanticWeight float64
}

// SignalWeights are the re-ranking signal weights. They are renormalised to
// sum to 1 before use.
type SignalWeights struct {
	Title      float64
	Recency    float64
	Usage      float64
	Density    float64
	Importance float64
	Proximity  float64
}

// ReRankSettings configures the multi-signal re-ranker.
type ReRankSettings struct {
	// PoolSize is how many top fused candidates are re-scored.
	PoolSize int

	// FusionCalibration scales fusion scores into [0,1]. It assumes fusion
	// scores cluster below 1/FusionCalibration and is tied to FusionSettings.K.
	FusionCalibration float64

	Weights SignalWeights

	// RecencyFloor zeroes recency scores below this value.
	RecencyFloor float64

	// UsageCap is the usage score that maps to 1.
	UsageCap float64
}

// PageRankSettings configures the importance computation.
type PageRankSettings struct {
	Damping       float64
	MaxIterations int
	Threshold     float64
}

// ChunkSettings configures document chunking.
type ChunkSettings struct {
	// TargetChars is the character budget per chunk.
	TargetChars int

	MinSentences int
	MaxSentences int
}

// SchedulerSettings configures incremental recomputation.
type SchedulerSettings struct {
	Throttle time.Duration
	Debounce time.Duration
}

// CacheSettings configures the search result cache.
type CacheSettings struct {
	TTL        time.Duration
	MaxEntries int
}

// ClusterSettings configures near-duplicate result merging.
type ClusterSettings struct {
	Threshold float64
}

// Settings holds all engine settings.
type Settings struct {
	Mode      SearchMode
	Embedding EmbeddingSettings
	Fusion    FusionSettings
	ReRank    ReRankSettings
	PageRank  PageRankSettings
	Chunking  ChunkSettings
	Scheduler SchedulerSettings
	Cache     CacheSettings
	Cluster   ClusterSettings
}

// Default values shared by services and configuration.
const (
	DefaultRRFK              = 60.0
	DefaultFusionCalibration = 30.0
	DefaultPoolSize          = 20
	DefaultClusterThreshold  = 0.85
	DefaultDamping           = 0.85
	DefaultMaxIterations     = 20
	DefaultPageRankThreshold = 1e-4
)

// DefaultSettings returns settings with sensible defaults.
// Embedding is left unconfigured; semantic retrieval stays off until a provider is set.
func DefaultSettings() Settings {
	return Settings{
		Mode: SearchModeHybrid,
		Embedding: EmbeddingSettings{
			MaxConcurrency: 4,
			Adaptive:       true,
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
		},
		Fusion: FusionSettings{
			K:              DefaultRRFK,
			KeywordWeight:  1.0,
			SemanticWeight: 1.0,
		},
		ReRank: ReRankSettings{
			PoolSize:          DefaultPoolSize,
			FusionCalibration: DefaultFusionCalibration,
			Weights: SignalWeights{
				Title:      0.25,
				Recency:    0.10,
				Usage:      0.10,
				Density:    0.20,
				Importance: 0.15,
				Proximity:  0.20,
			},
			RecencyFloor: 0.05,
			UsageCap:     1.0,
		},
		PageRank: PageRankSettings{
			Damping:       DefaultDamping,
			MaxIterations: DefaultMaxIterations,
			Threshold:     DefaultPageRankThreshold,
		},
		Chunking: ChunkSettings{
			TargetChars:  800,
			MinSentences: 2,
			MaxSentences: 4,
		},
		Scheduler: SchedulerSettings{
			Throttle: 5 * time.Second,
			Debounce: 1500 * time.Millisecond,
		},
		Cache: CacheSettings{
			TTL:        5 * time.Minute,
			MaxEntries: 200,
		},
		Cluster: ClusterSettings{
			Threshold: DefaultClusterThreshold,
		},
	}
}

// AllSearchModes returns all available search modes.
func AllSearchModes() []SearchMode {
	return []SearchMode{
		SearchModeKeyword,
		SearchModeSemantic,
		SearchModeHybrid,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor returns the chunking pipeline for the given chunk settings:
// sentence chunking followed by the title/tag context prefix.
func PipelineConfigFor(c ChunkSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "contextual"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"target_chars":  c.TargetChars,
				"min_sentences": c.MinSentences,
				"max_sentences": c.MaxSentences,
			},
		},
	}
}

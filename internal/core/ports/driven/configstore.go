package driven

// ConfigStore holds engine configuration as flat dotted keys such as
// "fusion.rrf_k" or "rerank.weights.title". Values keep the types a TOML
// decoder produces (int64, float64, string, bool); SettingsService maps them
// onto domain.Settings.
type ConfigStore interface {
	// Get returns the stored value of key.
	Get(key string) (any, bool)

	// Set stores one value and persists it.
	Set(key string, value any) error

	// SetAll stores several values and persists them in one write.
	SetAll(values map[string]any) error

	// Keys returns every stored key, sorted, including keys the engine
	// does not recognise.
	Keys() []string

	// Load re-reads the backing storage, discarding values not persisted.
	Load() error

	// Path names the backing storage in messages.
	Path() string
}

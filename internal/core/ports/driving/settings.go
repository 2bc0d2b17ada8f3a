package driving

import "github.com/custodia-labs/sercha-rank/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current settings, falling back to defaults for missing keys.
	Get() (*domain.Settings, error)

	// Save persists settings.
	Save(settings *domain.Settings) error

	// Set parses and stores a single setting by its configuration key.
	Set(key, value string) error

	// Keys returns every recognised configuration key.
	Keys() []string

	// Values returns the effective value of every key, as it would be stored.
	Values() (map[string]any, error)

	// SetSearchMode updates the search mode.
	SetSearchMode(mode domain.SearchMode) error

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// Validate checks that the current settings are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}

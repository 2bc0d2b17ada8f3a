package services

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keySearchMode     = "search.mode"
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedMaxConc   = "embedding.max_concurrency"
	keyEmbedAdaptive  = "embedding.adaptive"
	keyEmbedAttempts  = "embedding.max_attempts"
	keyEmbedBackoffMs = "embedding.initial_backoff_ms"
)

// settingField binds a config key to one field of domain.Settings.
// Durations are stored as integers in the given unit.
type settingField struct {
	key   string
	field func(s *domain.Settings) any
	unit  time.Duration
}

// settingFields lists every recognised key in save order.
var settingFields = []settingField{
	{key: keySearchMode, field: func(s *domain.Settings) any { return &s.Mode }},

	{key: keyEmbedProvider, field: func(s *domain.Settings) any { return &s.Embedding.Provider }},
	{key: keyEmbedModel, field: func(s *domain.Settings) any { return &s.Embedding.Model }},
	{key: keyEmbedBaseURL, field: func(s *domain.Settings) any { return &s.Embedding.BaseURL }},
	{key: keyEmbedAPIKey, field: func(s *domain.Settings) any { return &s.Embedding.APIKey }},
	{key: keyEmbedMaxConc, field: func(s *domain.Settings) any { return &s.Embedding.MaxConcurrency }},
	{key: keyEmbedAdaptive, field: func(s *domain.Settings) any { return &s.Embedding.Adaptive }},
	{key: keyEmbedAttempts, field: func(s *domain.Settings) any { return &s.Embedding.MaxAttempts }},
	{key: keyEmbedBackoffMs, field: func(s *domain.Settings) any { return &s.Embedding.InitialBackoff }, unit: time.Millisecond},

	{key: "fusion.rrf_k", field: func(s *domain.Settings) any { return &s.Fusion.K }},
	{key: "fusion.keyword_weight", field: func(s *domain.Settings) any { return &s.Fusion.KeywordWeight }},
	{key: "fusion.semantic_weight", field: func(s *domain.Settings) any { return &s.Fusion.SemanticWeight }},

	{key: "rerank.pool_size", field: func(s *domain.Settings) any { return &s.ReRank.PoolSize }},
	{key: "rerank.fusion_calibration", field: func(s *domain.Settings) any { return &s.ReRank.FusionCalibration }},
	{key: "rerank.recency_floor", field: func(s *domain.Settings) any { return &s.ReRank.RecencyFloor }},
	{key: "rerank.usage_cap", field: func(s *domain.Settings) any { return &s.ReRank.UsageCap }},
	{key: "rerank.weights.title", field: func(s *domain.Settings) any { return &s.ReRank.Weights.Title }},
	{key: "rerank.weights.recency", field: func(s *domain.Settings) any { return &s.ReRank.Weights.Recency }},
	{key: "rerank.weights.usage", field: func(s *domain.Settings) any { return &s.ReRank.Weights.Usage }},
	{key: "rerank.weights.density", field: func(s *domain.Settings) any { return &s.ReRank.Weights.Density }},
	{key: "rerank.weights.importance", field: func(s *domain.Settings) any { return &s.ReRank.Weights.Importance }},
	{key: "rerank.weights.proximity", field: func(s *domain.Settings) any { return &s.ReRank.Weights.Proximity }},

	{key: "pagerank.damping", field: func(s *domain.Settings) any { return &s.PageRank.Damping }},
	{key: "pagerank.max_iterations", field: func(s *domain.Settings) any { return &s.PageRank.MaxIterations }},
	{key: "pagerank.threshold", field: func(s *domain.Settings) any { return &s.PageRank.Threshold }},

	{key: "chunking.target_chars", field: func(s *domain.Settings) any { return &s.Chunking.TargetChars }},
	{key: "chunking.min_sentences", field: func(s *domain.Settings) any { return &s.Chunking.MinSentences }},
	{key: "chunking.max_sentences", field: func(s *domain.Settings) any { return &s.Chunking.MaxSentences }},

	{key: "scheduler.throttle_ms", field: func(s *domain.Settings) any { return &s.Scheduler.Throttle }, unit: time.Millisecond},
	{key: "scheduler.debounce_ms", field: func(s *domain.Settings) any { return &s.Scheduler.Debounce }, unit: time.Millisecond},

	{key: "cache.ttl_seconds", field: func(s *domain.Settings) any { return &s.Cache.TTL }, unit: time.Second},
	{key: "cache.max_entries", field: func(s *domain.Settings) any { return &s.Cache.MaxEntries }},

	{key: "cluster.threshold", field: func(s *domain.Settings) any { return &s.Cluster.Threshold }},
}

func lookupField(key string) (settingField, bool) {
	for _, f := range settingFields {
		if f.key == key {
			return f, true
		}
	}
	return settingField{}, false
}

// SettingsService manages engine settings stored in a ConfigStore.
type SettingsService struct {
	configStore driven.ConfigStore
	onChange    func(domain.Settings)
}

// NewSettingsService creates a new settings service. onChange, when set, is
// called with the new settings after every successful save.
func NewSettingsService(configStore driven.ConfigStore, onChange func(domain.Settings)) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		onChange:    onChange,
	}
}

// Get retrieves current settings. Missing or unreadable keys keep their
// default; unreadable values are logged and ignored.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()
	for _, key := range s.configStore.Keys() {
		if _, known := lookupField(key); !known {
			logger.Debug("settings: ignoring unknown key %s in %s", key, s.configStore.Path())
		}
	}
	for _, f := range settingFields {
		raw, ok := s.configStore.Get(f.key)
		if !ok {
			continue
		}
		if err := assignValue(f.field(&settings), raw, f.unit); err != nil {
			logger.Warn("settings: ignoring %s: %v", f.key, err)
		}
	}
	return &settings, nil
}

// Save persists settings and notifies the change hook.
func (s *SettingsService) Save(settings *domain.Settings) error {
	if settings == nil {
		return fmt.Errorf("save settings: %w", domain.ErrInvalidInput)
	}
	values := make(map[string]any, len(settingFields))
	for _, f := range settingFields {
		value := storedValue(f.field(settings), f.unit)
		// Empty secrets are not written.
		if f.key == keyEmbedAPIKey && value == "" {
			continue
		}
		values[f.key] = value
	}
	if err := s.configStore.SetAll(values); err != nil {
		return fmt.Errorf("save settings to %s: %w", s.configStore.Path(), err)
	}
	if s.onChange != nil {
		s.onChange(*settings)
	}
	return nil
}

// Set parses and stores a single setting.
func (s *SettingsService) Set(key, value string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := assignValue(f.field(settings), value, f.unit); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return s.Save(settings)
}

// Keys returns every recognised configuration key, sorted.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingFields))
	for i, f := range settingFields {
		keys[i] = f.key
	}
	sort.Strings(keys)
	return keys
}

// Values returns the current value of every key in its stored form.
func (s *SettingsService) Values() (map[string]any, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(settingFields))
	for _, f := range settingFields {
		out[f.key] = storedValue(f.field(settings), f.unit)
	}
	return out, nil
}

// SetSearchMode updates the search mode.
func (s *SettingsService) SetSearchMode(mode domain.SearchMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid search mode %q: %w", mode, domain.ErrInvalidInput)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Mode = mode
	return s.Save(settings)
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider %q: %w", provider, domain.ErrInvalidInput)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s: %w", provider, domain.ErrInvalidInput)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	// Ollama runs locally and needs a base URL; OpenAI uses its public endpoint.
	if provider == domain.AIProviderOllama {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = "http://localhost:11434"
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the current settings are usable. Every problem is
// reported, not only the first.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return ValidateSettings(*settings)
}

// ValidateSettings checks a settings value.
func ValidateSettings(settings domain.Settings) error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format+": %w", append(args, domain.ErrInvalidInput)...))
	}

	if !settings.Mode.IsValid() {
		add("invalid search mode %q", settings.Mode)
	}
	if settings.Mode == domain.SearchModeSemantic && !settings.Embedding.IsConfigured() {
		add("search mode %q requires an embedding provider", settings.Mode.Description())
	}
	if settings.Embedding.Provider != "" && !settings.Embedding.IsConfigured() {
		add("embedding provider %q is not fully configured", settings.Embedding.Provider)
	}
	if settings.Fusion.K <= 0 {
		add("fusion.rrf_k must be positive")
	}
	if settings.Fusion.KeywordWeight < 0 || settings.Fusion.SemanticWeight < 0 {
		add("fusion weights must not be negative")
	}
	// The best possible fusion score is reached at rank 1 in both lists; past
	// that point the calibrated fusion share clips at 1 and stops ordering.
	if f := settings.Fusion; f.K > 0 {
		best := (f.KeywordWeight + f.SemanticWeight) / (f.K + 1)
		if c := settings.ReRank.FusionCalibration; c > 0 && best*c > 1 {
			add("rerank.fusion_calibration %v saturates for fusion.rrf_k %v (keep it at or below %.1f)",
				c, f.K, 1/best)
		}
	}
	if settings.ReRank.PoolSize < 0 {
		add("rerank.pool_size must not be negative")
	}
	w := settings.ReRank.Weights
	if w.Title < 0 || w.Recency < 0 || w.Usage < 0 || w.Density < 0 || w.Importance < 0 || w.Proximity < 0 {
		add("rerank weights must not be negative")
	}
	if d := settings.PageRank.Damping; d <= 0 || d >= 1 {
		add("pagerank.damping must be in (0,1), got %v", d)
	}
	if t := settings.Cluster.Threshold; t <= 0 || t > 1 {
		add("cluster.threshold must be in (0,1], got %v", t)
	}
	if settings.Chunking.TargetChars <= 0 {
		add("chunking.target_chars must be positive")
	}
	if settings.Scheduler.Throttle < 0 || settings.Scheduler.Debounce < 0 {
		add("scheduler delays must not be negative")
	}
	return errs
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// assignValue converts a stored or typed-in value into the field ptr.
func assignValue(ptr, raw any, unit time.Duration) error {
	switch p := ptr.(type) {
	case *string:
		v, err := toString(raw)
		if err != nil {
			return err
		}
		*p = v
	case *domain.SearchMode:
		v, err := toString(raw)
		if err != nil {
			return err
		}
		mode := domain.SearchMode(v)
		if !mode.IsValid() {
			return fmt.Errorf("unknown search mode %q", v)
		}
		*p = mode
	case *domain.AIProvider:
		v, err := toString(raw)
		if err != nil {
			return err
		}
		provider := domain.AIProvider(v)
		if v != "" && !provider.IsValid() {
			return fmt.Errorf("unknown provider %q", v)
		}
		*p = provider
	case *int:
		v, err := toFloat(raw)
		if err != nil {
			return err
		}
		*p = int(v)
	case *float64:
		v, err := toFloat(raw)
		if err != nil {
			return err
		}
		*p = v
	case *bool:
		v, err := toBool(raw)
		if err != nil {
			return err
		}
		*p = v
	case *time.Duration:
		v, err := toFloat(raw)
		if err != nil {
			return err
		}
		if unit == 0 {
			unit = time.Millisecond
		}
		*p = time.Duration(v * float64(unit))
	default:
		return fmt.Errorf("unsupported setting type %T", ptr)
	}
	return nil
}

// storedValue returns the config store form of the field ptr.
func storedValue(ptr any, unit time.Duration) any {
	switch p := ptr.(type) {
	case *string:
		return *p
	case *domain.SearchMode:
		return p.String()
	case *domain.AIProvider:
		return p.String()
	case *int:
		return int64(*p)
	case *float64:
		return *p
	case *bool:
		return *p
	case *time.Duration:
		if unit == 0 {
			unit = time.Millisecond
		}
		return int64(*p / unit)
	default:
		return nil
	}
}

var errWrongType = errors.New("wrong value type")

func toString(raw any) (string, error) {
	if v, ok := raw.(string); ok {
		return strings.TrimSpace(v), nil
	}
	return "", fmt.Errorf("%w: want string, got %T", errWrongType, raw)
}

// toFloat accepts the numeric types TOML decoding produces and strings typed
// on the command line.
func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", errWrongType, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: want number, got %T", errWrongType, raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", errWrongType, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: want bool, got %T", errWrongType, raw)
	}
}

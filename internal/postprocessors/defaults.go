package postprocessors

import (
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-rank/internal/postprocessors/contextual"
)

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("contextual", buildContextual)
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - target_chars (int): Character budget per chunk (default: 800)
//   - min_sentences (int): Minimum sentences per chunk (default: 2)
//   - max_sentences (int): Maximum sentences per chunk (default: 4)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "target_chars"); size > 0 {
			opts = append(opts, chunker.WithTargetChars(size))
		}
		opts = append(opts, chunker.WithSentenceBounds(
			getIntFromConfig(cfg, "min_sentences"),
			getIntFromConfig(cfg, "max_sentences"),
		))
	}

	return chunker.New(opts...), nil
}

// buildContextual creates a contextual prefix processor.
// Supported config keys:
//   - include_tags (bool): Add #tags after the title (default: true)
func buildContextual(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []contextual.Option
	if v, ok := cfg["include_tags"].(bool); ok {
		opts = append(opts, contextual.WithTags(v))
	}
	return contextual.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Package app wires the engine services to their adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-rank/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rank/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rank/internal/adapters/driven/corpus/filesystem"
	"github.com/custodia-labs/sercha-rank/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/core/services"
	"github.com/custodia-labs/sercha-rank/internal/logger"
	"github.com/custodia-labs/sercha-rank/internal/postprocessors"
)

// ErrNoVault is returned when no vault directory is given.
var ErrNoVault = errors.New("vault directory required")

// Options locate the vault, the index database and the config file.
type Options struct {
	VaultDir  string
	DataDir   string
	ConfigDir string

	// Embedder replaces the provider configured in settings.
	Embedder driven.EmbeddingService

	Clock clock.Clock
}

// App holds the wired services. Close releases them.
type App struct {
	Settings *services.SettingsService
	Search   *services.SearchService
	Indexer  *services.LiveIndexer
	Graph    *services.DocumentGraph
	Usage    *services.UsageService
	Corpus   *filesystem.Corpus

	// UsageLog is the persistent access log, exposed for pruning.
	UsageLog *sqlite.UsageStore

	store    *sqlite.Store
	queue    *services.RequestQueue
	embedder driven.EmbeddingService
}

// Open loads settings and builds every service. An unreachable embedding
// provider is logged and semantic retrieval stays off.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.VaultDir == "" {
		return nil, ErrNoVault
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}

	a := &App{}
	a.Settings = services.NewSettingsService(configStore, func(s domain.Settings) {
		if a.Search != nil {
			a.Search.ApplySettings(s)
		}
	})
	settings, err := a.Settings.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := services.ValidateSettings(*settings); err != nil {
		logger.Warn("settings: %v", err)
	}

	a.store, err = sqlite.NewStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	a.embedder = opts.Embedder
	if a.embedder == nil {
		a.embedder, err = ai.CreateAndValidateEmbeddingService(ctx, &settings.Embedding)
		if err != nil {
			logger.Warn("%v; semantic search disabled", err)
		}
	}

	var embeddings *services.EmbeddingIndex
	if a.embedder != nil {
		registry := postprocessors.NewRegistry()
		postprocessors.RegisterDefaults(registry)
		pipeline, err := registry.BuildPipeline(domain.PipelineConfigFor(settings.Chunking))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("building chunk pipeline: %w", err), a.Close())
		}
		logger.Debug("chunk pipeline: %s", strings.Join(pipeline.Names(), " -> "))
		cfg := services.RequestQueueConfigFrom(settings.Embedding)
		cfg.Clock = clk
		a.queue, err = services.NewRequestQueue(cfg)
		if err != nil {
			return nil, multierr.Append(err, a.Close())
		}
		embeddings = services.NewEmbeddingIndex(a.embedder, pipeline, a.queue, a.store.EmbeddingStore())
	}

	a.Graph = services.NewDocumentGraph(
		services.WithGraphClock(clk),
		services.WithPageRankSettings(settings.PageRank),
		services.WithRecomputeSchedule(settings.Scheduler),
		services.WithRecomputeHook(func(res domain.PageRankResult) {
			if a.Indexer != nil {
				a.Indexer.HandleRecompute(res)
			}
		}),
	)

	a.Corpus = filesystem.New(opts.VaultDir)
	a.UsageLog = a.store.UsageStore(clk)
	engine := a.store.SearchEngine()
	segmenter := services.NewQuerySegmenter()

	a.Search = services.NewSearchService(services.SearchDeps{
		Engine:     engine,
		Embeddings: embeddings,
		Graph:      a.Graph,
		Segmenter:  segmenter,
		Corpus:     a.Corpus,
		Usage:      a.UsageLog,
		Clock:      clk,
	}, *settings)
	a.Usage = services.NewUsageService(a.UsageLog, a.Search)

	a.Indexer = services.NewLiveIndexer(services.LiveIndexerDeps{
		Corpus:      a.Corpus,
		Engine:      engine,
		Embeddings:  embeddings,
		Graph:       a.Graph,
		Segmenter:   segmenter,
		GraphStore:  a.store.GraphStore(),
		Cache:       a.Search,
		Usage:       a.UsageLog,
		Clock:       clk,
		Parallelism: settings.Embedding.MaxConcurrency,
	}, settings.Scheduler)

	return a, nil
}

// Close stops the indexer and releases every resource. It is safe to call
// on a partially opened App.
func (a *App) Close() error {
	var err error
	if a.Indexer != nil {
		err = multierr.Append(err, a.Indexer.Stop())
	}
	if a.Graph != nil {
		a.Graph.Close()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.embedder != nil {
		err = multierr.Append(err, a.embedder.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	return err
}

// Command sercha-rank indexes a markdown vault and serves ranked search.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/sercha-rank/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rank/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rank/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, openServices); err != nil {
		stop()
		os.Exit(1)
	}
}

// openServices opens the vault and maps the wired app onto the CLI ports.
func openServices(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	vault := opts.VaultDir
	if vault == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		vault = wd
	}

	a, err := app.Open(ctx, app.Options{
		VaultDir:  vault,
		DataDir:   opts.DataDir,
		ConfigDir: opts.ConfigDir,
	})
	if err != nil {
		return nil, err
	}

	return &cli.Services{
		Search:            a.Search,
		Index:             a.Indexer,
		Graph:             a.Graph,
		Usage:             a.Usage,
		Settings:          a.Settings,
		Documents:         a.Corpus,
		PruneUsage:        a.UsageLog.Prune,
		ValidateEmbedding: ai.ValidateEmbeddingConfig,
		Close:             a.Close,
	}, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
)

var (
	indexPruneUsage time.Duration
	indexQuiet      bool
)

// progressInterval is how often a running rebuild reports progress.
var progressInterval = 500 * time.Millisecond

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the index from the vault",
	Long: `Rebuilds the link graph, PageRank scores and embeddings from every note in the
vault and saves the snapshots. Embeddings whose content has not changed are reused.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index up to date while notes change",
	Long: `Rebuilds the index, then follows changes to the vault and updates the graph
and embeddings incrementally until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	indexCmd.Flags().DurationVar(&indexPruneUsage, "prune-usage", 90*24*time.Hour,
		"delete access records older than this (0 keeps everything)")
	indexCmd.Flags().BoolVarP(&indexQuiet, "quiet", "q", false, "only print the summary")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	ctx := cmd.Context()

	cmd.Println("Indexing vault...")
	stats, err := rebuildWithProgress(ctx, cmd, indexService)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	printIndexStats(cmd, stats)

	if indexPruneUsage > 0 && usagePruner != nil {
		removed, err := usagePruner(ctx, time.Now().Add(-indexPruneUsage))
		if err != nil {
			return fmt.Errorf("pruning usage: %w", err)
		}
		if removed > 0 {
			cmd.Printf("Pruned %d old access records\n", removed)
		}
	}
	return nil
}

// rebuildWithProgress runs a rebuild while displaying the elapsed time.
func rebuildWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	idx driving.IndexService,
) (*domain.IndexStats, error) {
	type result struct {
		stats *domain.IndexStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := idx.Rebuild(ctx)
		done <- result{stats, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case r := <-done:
			if !indexQuiet && time.Since(start) >= progressInterval {
				cmd.Println()
			}
			return r.stats, r.err
		case <-ticker.C:
			if !indexQuiet {
				cmd.Printf("\rIndexing... %s", time.Since(start).Round(time.Second))
			}
		}
	}
}

func printIndexStats(cmd *cobra.Command, stats *domain.IndexStats) {
	if stats == nil {
		return
	}
	cmd.Printf("Indexed %d documents, %d links in %s\n",
		stats.Documents, stats.Links, stats.Duration().Round(time.Millisecond))
	if stats.GraphRestored {
		cmd.Println("  Graph: restored from snapshot")
	} else {
		converged := "converged"
		if !stats.Converged {
			converged = "not converged"
		}
		cmd.Printf("  PageRank: %d iterations (%s)\n", stats.PageRankIterations, converged)
	}
	cmd.Printf("  Embeddings: %d documents (%d reused)\n", stats.EmbeddedDocuments, stats.ReusedEmbeddings)
	if stats.EmbeddingFailures > 0 {
		cmd.Printf("  Embedding failures: %d\n", stats.EmbeddingFailures)
	}
	if stats.DroppedVectors > 0 {
		cmd.Printf("  Dropped vectors: %d (dimension mismatch)\n", stats.DroppedVectors)
	}
	if stats.Phrases > 0 {
		cmd.Printf("  Phrases learned: %d\n", stats.Phrases)
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	ctx := cmd.Context()

	stats, err := indexService.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}
	printIndexStats(cmd, stats)

	if err := indexService.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	cmd.Println("Watching for changes. Press Ctrl+C to stop.")

	<-ctx.Done()

	if err := indexService.Stop(); err != nil {
		return fmt.Errorf("stopping watcher: %w", err)
	}
	status := indexService.Status()
	cmd.Printf("Stopped. %d documents, %d embedded\n", status.Documents, status.EmbeddedDocuments)
	return nil
}

// Package cli provides the cobra commands of the sercha-rank binary.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rank/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Options are the global flags handed to the Opener.
type Options struct {
	VaultDir  string
	DataDir   string
	ConfigDir string
}

// Services are the driving ports the commands operate on.
type Services struct {
	Search    driving.SearchService
	Index     driving.IndexService
	Graph     driving.GraphService
	Usage     driving.UsageService
	Settings  driving.SettingsService
	Documents mcp.DocumentReader

	// PruneUsage deletes access records older than the cutoff. Optional.
	PruneUsage func(ctx context.Context, before time.Time) (int64, error)

	// ValidateEmbedding pings an embedding provider configuration. Optional.
	ValidateEmbedding func(ctx context.Context, settings *domain.EmbeddingSettings) error

	// Close releases everything the opener acquired. Optional.
	Close func() error
}

// Opener builds the services for one command invocation.
type Opener func(ctx context.Context, opts Options) (*Services, error)

var (
	globalOpts Options
	verbose    bool

	opener Opener

	// openedServices is non-nil while a command runs with services from the opener.
	openedServices *Services

	searchService   driving.SearchService
	indexService    driving.IndexService
	graphService    driving.GraphService
	usageService    driving.UsageService
	settingsService driving.SettingsService
	documentReader  mcp.DocumentReader
	usagePruner     func(ctx context.Context, before time.Time) (int64, error)
	embeddingCheck  func(ctx context.Context, settings *domain.EmbeddingSettings) error
)

// skipServicesAnnotation marks commands that run without opening the vault.
const skipServicesAnnotation = "skip-services"

var rootCmd = &cobra.Command{
	Use:   "sercha-rank",
	Short: "Hybrid search and ranking for a markdown vault",
	Long: `sercha-rank indexes a folder of markdown notes and ranks search results by
combining keyword and semantic retrieval, link-graph importance, recency and usage.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openServices,
	PersistentPostRunE: closeServices,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalOpts.VaultDir, "vault", "", "vault directory to index (default: current directory)")
	flags.StringVar(&globalOpts.DataDir, "data-dir", "", "index data directory (default: ~/.sercha-rank/data)")
	flags.StringVar(&globalOpts.ConfigDir, "config", "", "config directory (default: ~/.sercha-rank)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command with services built by the opener.
func Execute(ctx context.Context, o Opener) error {
	opener = o
	return rootCmd.ExecuteContext(ctx)
}

func openServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if !needsServices(cmd) {
		return nil
	}
	// Already wired, e.g. by tests.
	if searchService != nil {
		return nil
	}
	if opener == nil {
		return errors.New("no service opener configured")
	}

	svc, err := opener(cmd.Context(), globalOpts)
	if err != nil {
		return err
	}
	setServices(svc)
	openedServices = svc
	return nil
}

func needsServices(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipServicesAnnotation] == "true" || c.Name() == "completion" {
			return false
		}
	}
	return true
}

func closeServices(_ *cobra.Command, _ []string) error {
	svc := openedServices
	if svc == nil {
		return nil
	}
	openedServices = nil
	setServices(&Services{})
	if svc.Close == nil {
		return nil
	}
	return svc.Close()
}

func setServices(svc *Services) {
	searchService = svc.Search
	indexService = svc.Index
	graphService = svc.Graph
	usageService = svc.Usage
	settingsService = svc.Settings
	documentReader = svc.Documents
	usagePruner = svc.PruneUsage
	embeddingCheck = svc.ValidateEmbedding
}

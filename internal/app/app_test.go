package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

func newTestVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	notes := map[string]string{
		"alpha.md": "# Alpha Project\n\nThe alpha project plan links to [[beta]].",
		"beta.md":  "# Beta\n\nNotes on gardening and tomatoes.",
		"gamma.md": "# Gamma\n\nCooking recipes with [[beta]].",
		"delta.md": "Unrelated text about rivers.",
	}
	for name, content := range notes {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func openTestApp(t *testing.T, vault, dataDir, configDir string) *App {
	t.Helper()
	a, err := Open(context.Background(), Options{VaultDir: vault, DataDir: dataDir, ConfigDir: configDir})
	require.NoError(t, err)
	return a
}

func TestOpen_RequiresVault(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoVault)
}

func TestApp_RebuildAndSearch(t *testing.T) {
	ctx := context.Background()
	a := openTestApp(t, newTestVault(t), t.TempDir(), t.TempDir())
	defer a.Close()

	stats, err := a.Indexer.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 2, stats.Links)
	assert.Zero(t, stats.EmbeddedDocuments)

	resp, err := a.Search.Search(ctx, "alpha", domain.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "alpha.md", resp.Results[0].DocumentID)
	assert.Equal(t, "Alpha Project", resp.Results[0].Title)

	top := a.Graph.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, "beta.md", top[0].DocumentID)
	assert.Equal(t, 2, top[0].InLinks)
}

func TestApp_RecordAccess(t *testing.T) {
	ctx := context.Background()
	a := openTestApp(t, newTestVault(t), t.TempDir(), t.TempDir())
	defer a.Close()

	require.NoError(t, a.Usage.RecordAccess(ctx, "alpha.md", 30*time.Second))

	signals, err := a.UsageLog.Signals(ctx, "alpha.md")
	require.NoError(t, err)
	assert.Greater(t, signals.Frequency, 0.0)
	assert.Zero(t, signals.Bounce)
}

func TestApp_ReopenRestoresGraph(t *testing.T) {
	ctx := context.Background()
	vault, dataDir, configDir := newTestVault(t), t.TempDir(), t.TempDir()

	first := openTestApp(t, vault, dataDir, configDir)
	_, err := first.Indexer.Rebuild(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openTestApp(t, vault, dataDir, configDir)
	defer second.Close()
	stats, err := second.Indexer.Rebuild(ctx)

	require.NoError(t, err)
	assert.True(t, stats.GraphRestored)
}

func TestApp_SettingsChangesApply(t *testing.T) {
	ctx := context.Background()
	configDir := t.TempDir()
	a := openTestApp(t, newTestVault(t), t.TempDir(), configDir)
	defer a.Close()
	_, err := a.Indexer.Rebuild(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Settings.Set("search.mode", "keyword"))
	require.NoError(t, a.Settings.Set("rerank.pool_size", "5"))

	resp, err := a.Search.Search(ctx, "gardening", domain.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "beta.md", resp.Results[0].DocumentID)

	_, err = os.Stat(filepath.Join(configDir, "config.toml"))
	assert.NoError(t, err)
}

func TestApp_CloseTwice(t *testing.T) {
	a := openTestApp(t, newTestVault(t), t.TempDir(), t.TempDir())

	require.NoError(t, a.Close())
	assert.NotPanics(t, func() { _ = a.Indexer.Stop() })
}

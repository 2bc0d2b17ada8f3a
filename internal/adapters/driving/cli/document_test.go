package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

func TestDocumentGetCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "get", "alpha.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Title:    Alpha Project")
	assert.Contains(t, out, "Modified: 2024-03-01T09:00:00Z")
	assert.Contains(t, out, "Tags:     plan, work")
	assert.Contains(t, out, "-> beta.md")
	assert.Contains(t, out, "Importance: 0.500")
}

func TestDocumentGetCmd_NotFound(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("document", "get", "missing.md")

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentContentCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "content", "alpha.md")

	require.NoError(t, err)
	assert.Equal(t, "The alpha plan links to beta.\n", out)
}

func TestDocumentAccessCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("document", "access", "alpha.md", "--dwell", "45s")

	require.NoError(t, err)
	assert.Equal(t, "alpha.md", ts.usage.gotID)
	assert.Equal(t, 45*time.Second, ts.usage.gotDwell)
	assert.Contains(t, out, "Recorded access to alpha.md")
}

func TestDocumentAccessCmd_Error(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.usage.err = domain.ErrNotFound

	_, err := executeCommand("document", "access", "gone.md")

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentAccessCmd_NegativeDwell(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("document", "access", "alpha.md", "--dwell=-5s")

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, ts.usage.gotID)
}

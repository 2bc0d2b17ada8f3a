package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrSearchUnavailable", ErrSearchUnavailable},
		{"ErrProviderFailed", ErrProviderFailed},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrSnapshotVersion", ErrSnapshotVersion},
		{"ErrInvalidFilter", ErrInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

// TestErrors_Wrapping tests that wrapped domain errors are detectable
func TestErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("chunk 3 of notes/a.md: %w", ErrDimensionMismatch)

	assert.True(t, errors.Is(wrapped, ErrDimensionMismatch))
	assert.False(t, errors.Is(wrapped, ErrSnapshotVersion))
}

package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil search service returns error", func(t *testing.T) {
		ports := &Ports{}
		server, err := NewServer(ports)
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingSearchService)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		ports := &Ports{
			Search: &mockSearchService{},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})

	t.Run("all ports registers everything", func(t *testing.T) {
		ports := &Ports{
			Search:    &mockSearchService{},
			Usage:     &mockUsageService{},
			Graph:     &mockGraphService{},
			Documents: &mockDocumentReader{},
		}
		server, err := NewServer(ports)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestPorts_Validate(t *testing.T) {
	t.Run("nil search service returns error", func(t *testing.T) {
		ports := &Ports{Usage: &mockUsageService{}}
		err := ports.Validate()
		assert.ErrorIs(t, err, ErrMissingSearchService)
	})

	t.Run("search only is valid", func(t *testing.T) {
		ports := &Ports{
			Search: &mockSearchService{},
		}
		err := ports.Validate()
		assert.NoError(t, err)
	})
}

func TestInstructions(t *testing.T) {
	t.Run("search only", func(t *testing.T) {
		text := instructions(&Ports{Search: &mockSearchService{}})
		assert.Contains(t, text, "- search:")
		assert.NotContains(t, text, "record_access")
		assert.NotContains(t, text, "graph/top")
		assert.NotContains(t, text, "documents/{documentId}")
	})

	t.Run("all ports", func(t *testing.T) {
		text := instructions(&Ports{
			Search:    &mockSearchService{},
			Usage:     &mockUsageService{},
			Graph:     &mockGraphService{},
			Documents: &mockDocumentReader{},
		})
		assert.Contains(t, text, "- record_access:")
		assert.Contains(t, text, "sercha-rank://graph/top")
		assert.Contains(t, text, "sercha-rank://documents/{documentId}")
	})
}

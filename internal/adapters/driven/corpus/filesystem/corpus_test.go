package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

const eventTimeout = 2 * time.Second

func writeNote(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeNote(t, root, "alpha.md", "# Alpha\n\nLinks to [[beta]].")
	writeNote(t, root, "sub/beta.md", "---\ntags: [x]\n---\nBeta body.")
	writeNote(t, root, "image.png", "not a note")
	writeNote(t, root, ".obsidian/workspace.md", "hidden")
	writeNote(t, root, ".draft.md", "hidden")
	return root
}

// nextEvent waits for the next event that is not a duplicate write of a
// document already reported.
func nextEvent(t *testing.T, ch <-chan domain.ChangeEvent, want domain.ChangeType, id string) domain.ChangeEvent {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed")
			if ev.Type == want && ev.DocumentID == id {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s", want, id)
		}
	}
}

func TestCorpus_ListAndGet(t *testing.T) {
	c := New(newVault(t))
	ctx := context.Background()

	infos, err := c.List(ctx)

	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha.md", infos[0].ID)
	assert.Equal(t, "Alpha", infos[0].Title)
	assert.Equal(t, "sub/beta.md", infos[1].ID)
	assert.True(t, infos[1].Metadata.Tags.Has("x"))

	doc, err := c.Get(ctx, "alpha.md")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Links to beta.")
	assert.Equal(t, []domain.Link{{Target: "beta"}}, doc.Metadata.Links)

	_, err = c.Get(ctx, ".draft.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorpus_GetReturnsCopy(t *testing.T) {
	c := New(newVault(t))
	ctx := context.Background()

	doc, err := c.Get(ctx, "alpha.md")
	require.NoError(t, err)
	doc.Title = "changed"

	again, err := c.Get(ctx, "alpha.md")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", again.Title)
}

func TestCorpus_WithExtensions(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "a")
	writeNote(t, root, "b.txt", "b")

	infos, err := New(root, WithExtensions(".TXT")).List(context.Background())

	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "b.txt", infos[0].ID)
}

func TestCorpus_SkipsUnparsableFiles(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "good.md", "fine")
	writeNote(t, root, "bad.md", "---\nkey: [unclosed\n---\n")

	infos, err := New(root).List(context.Background())

	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "good.md", infos[0].ID)
}

func TestCorpus_LoadErrors(t *testing.T) {
	_, err := New("/non/existent/path").List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root path error")

	file := writeNote(t, t.TempDir(), "note.md", "x")
	_, err = New(file).List(context.Background())
	assert.Error(t, err)
}

func TestCorpus_Reload(t *testing.T) {
	root := newVault(t)
	c := New(root)
	ctx := context.Background()
	_, err := c.List(ctx)
	require.NoError(t, err)

	writeNote(t, root, "gamma.md", "new")
	require.NoError(t, c.Load(ctx))

	infos, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 3)
}

func TestCorpus_Subscribe(t *testing.T) {
	root := newVault(t)
	c := New(root, WithRenameWindow(eventTimeout))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Subscribe(ctx)
	require.NoError(t, err)

	t.Run("created", func(t *testing.T) {
		writeNote(t, root, "gamma.md", "# Gamma")
		nextEvent(t, events, domain.ChangeCreated, "gamma.md")
	})

	t.Run("modified", func(t *testing.T) {
		writeNote(t, root, "alpha.md", "# Alpha v2")
		nextEvent(t, events, domain.ChangeModified, "alpha.md")

		require.Eventually(t, func() bool {
			doc, err := c.Get(ctx, "alpha.md")
			return err == nil && doc.Title == "Alpha v2"
		}, eventTimeout, 10*time.Millisecond)
	})

	t.Run("renamed", func(t *testing.T) {
		require.NoError(t, os.Rename(filepath.Join(root, "sub", "beta.md"), filepath.Join(root, "sub", "beta2.md")))
		ev := nextEvent(t, events, domain.ChangeRenamed, "sub/beta2.md")
		assert.Equal(t, "sub/beta.md", ev.OldID)
	})

	t.Run("new folder", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "fresh"), 0o755))
		// The folder is watched once its Create event is handled.
		time.Sleep(100 * time.Millisecond)
		writeNote(t, root, "fresh/delta.md", "delta")
		nextEvent(t, events, domain.ChangeCreated, "fresh/delta.md")
	})

	t.Run("deleted", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(root, "gamma.md")))
		nextEvent(t, events, domain.ChangeDeleted, "gamma.md")

		_, err := c.Get(ctx, "gamma.md")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("hidden files are ignored", func(t *testing.T) {
		writeNote(t, root, ".hidden.md", "x")
		writeNote(t, root, "marker.md", "x")
		ev := nextEvent(t, events, domain.ChangeCreated, "marker.md")
		assert.Equal(t, "marker.md", ev.DocumentID)
		_, err := c.Get(ctx, ".hidden.md")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCorpus_MovedOutIsDeleted(t *testing.T) {
	root := newVault(t)
	outside := t.TempDir()
	c := New(root, WithRenameWindow(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(root, "alpha.md"), filepath.Join(outside, "alpha.md")))

	nextEvent(t, events, domain.ChangeDeleted, "alpha.md")
}

func TestCorpus_SubscribeClosesOnCancel(t *testing.T) {
	c := New(newVault(t))
	ctx, cancel := context.WithCancel(context.Background())

	events, err := c.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			for range events {
			}
		}
	case <-time.After(eventTimeout):
		t.Fatal("channel did not close after context cancellation")
	}
}

func TestCorpus_SubscribeMissingRoot(t *testing.T) {
	events, err := New("/non/existent/path").Subscribe(context.Background())

	assert.Error(t, err)
	assert.Nil(t, events)
}

func TestCorpus_HandleFsEvent(t *testing.T) {
	root := newVault(t)
	c := New(root)
	require.NoError(t, c.Load(context.Background()))
	var pending []pendingRename

	t.Run("chmod is ignored", func(t *testing.T) {
		events, moved := c.handleFsEvent(nil, fsnotify.Event{Name: filepath.Join(root, "alpha.md"), Op: fsnotify.Chmod}, &pending)
		assert.Empty(t, events)
		assert.False(t, moved)
	})

	t.Run("unchanged write is ignored", func(t *testing.T) {
		events, _ := c.handleFsEvent(nil, fsnotify.Event{Name: filepath.Join(root, "alpha.md"), Op: fsnotify.Write}, &pending)
		assert.Empty(t, events)
	})

	t.Run("non-document files are ignored", func(t *testing.T) {
		events, _ := c.handleFsEvent(nil, fsnotify.Event{Name: filepath.Join(root, "image.png"), Op: fsnotify.Write}, &pending)
		assert.Empty(t, events)
	})

	t.Run("rename parks the document", func(t *testing.T) {
		src := filepath.Join(root, "alpha.md")
		dst := filepath.Join(root, "archive.md")
		require.NoError(t, os.Rename(src, dst))

		events, moved := c.handleFsEvent(nil, fsnotify.Event{Name: src, Op: fsnotify.Rename}, &pending)
		assert.Empty(t, events)
		assert.True(t, moved)
		require.Len(t, pending, 1)

		events, _ = c.handleFsEvent(nil, fsnotify.Event{Name: dst, Op: fsnotify.Create}, &pending)
		assert.Equal(t, []domain.ChangeEvent{{Type: domain.ChangeRenamed, DocumentID: "archive.md", OldID: "alpha.md"}}, events)
		assert.Empty(t, pending)
	})

	t.Run("moved away and back is a modification", func(t *testing.T) {
		p := filepath.Join(root, "archive.md")
		_, moved := c.handleFsEvent(nil, fsnotify.Event{Name: p, Op: fsnotify.Rename}, &pending)
		require.True(t, moved)

		writeNote(t, root, "archive.md", "rewritten")
		events, _ := c.handleFsEvent(nil, fsnotify.Event{Name: p, Op: fsnotify.Create}, &pending)
		assert.Equal(t, []domain.ChangeEvent{{Type: domain.ChangeModified, DocumentID: "archive.md"}}, events)
		assert.Empty(t, pending)
	})

	t.Run("removing a folder deletes its documents", func(t *testing.T) {
		dir := filepath.Join(root, "sub")
		require.NoError(t, os.RemoveAll(dir))

		events, _ := c.handleFsEvent(nil, fsnotify.Event{Name: dir, Op: fsnotify.Remove}, &pending)
		assert.Equal(t, []domain.ChangeEvent{{Type: domain.ChangeDeleted, DocumentID: "sub/beta.md"}}, events)
	})

	t.Run("hidden paths are ignored", func(t *testing.T) {
		events, _ := c.handleFsEvent(nil, fsnotify.Event{Name: filepath.Join(root, ".obsidian", "x.md"), Op: fsnotify.Create}, &pending)
		assert.Empty(t, events)
	})
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden(".git"))
	assert.False(t, isHidden("."))
	assert.False(t, isHidden(".."))
	assert.False(t, isHidden("file.md"))
	assert.True(t, hasHiddenPart("a/.b/c.md"))
	assert.False(t, hasHiddenPart("a/b/c.md"))
}

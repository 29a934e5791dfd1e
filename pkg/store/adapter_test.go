package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(RuntimeConfig{NodeID: "node1", DataDir: filepath.Join(t.TempDir(), "data")})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestAdapterCreateNoteFiresInsertCallback(t *testing.T) {
	rt := newTestRuntime(t)

	inserted := make(chan NoteRow, 1)
	a := NewAdapter(rt, RowCallbacks{
		OnNoteInsert: func(n NoteRow) { inserted <- n },
	})
	defer a.Close()

	require.NoError(t, a.CreateNote(CreateNotePayload{ID: "n1", Path: "a.md", Content: "hi", Size: 2}))

	select {
	case n := <-inserted:
		assert.Equal(t, "n1", n.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnNoteInsert to fire")
	}
}

func TestAdapterUpdateAndDeleteCallbacks(t *testing.T) {
	rt := newTestRuntime(t)

	updates := make(chan NoteRow, 1)
	deletes := make(chan NoteRow, 1)
	a := NewAdapter(rt, RowCallbacks{
		OnNoteUpdate: func(old, new NoteRow) { updates <- new },
		OnNoteDelete: func(n NoteRow) { deletes <- n },
	})
	defer a.Close()

	require.NoError(t, a.CreateNote(CreateNotePayload{ID: "n1", Path: "a.md", Content: "v1"}))
	require.NoError(t, a.UpdateNoteContent(UpdateNoteContentPayload{ID: "n1", Content: "v2"}))

	select {
	case n := <-updates:
		assert.Equal(t, "v2", n.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnNoteUpdate to fire")
	}

	require.NoError(t, a.DeleteNote("n1"))
	select {
	case n := <-deletes:
		assert.Equal(t, "n1", n.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnNoteDelete to fire")
	}
}

func TestAdapterGetRecentNotesBypassesRaft(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAdapter(rt, RowCallbacks{})
	defer a.Close()

	require.NoError(t, a.CreateNote(CreateNotePayload{ID: "n1", Path: "a.md"}))
	require.NoError(t, a.CreateNote(CreateNotePayload{ID: "n2", Path: "b.md"}))

	recent, err := a.GetRecentNotes(10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestAdapterWaitForSync(t *testing.T) {
	rt := newTestRuntime(t)
	a := NewAdapter(rt, RowCallbacks{})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.WaitForSync(ctx))
}

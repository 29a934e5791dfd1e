package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
)

func TestOnNoteInsertWritesFile(t *testing.T) {
	root := t.TempDir()
	r := New(root, tracker.New())

	r.Callbacks().OnNoteInsert(store.NoteRow{ID: "n1", Path: "a.md", Content: "hello"})

	data, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "n1")
}

func TestOnNoteInsertSkipsEcho(t *testing.T) {
	root := t.TempDir()
	tr := tracker.New()
	tr.Update("n1", "already known")
	r := New(root, tr)

	r.Callbacks().OnNoteInsert(store.NoteRow{ID: "n1", Path: "a.md", Content: "already known"})

	_, err := os.Stat(filepath.Join(root, "a.md"))
	assert.True(t, os.IsNotExist(err), "echoed insert should not write to disk")
}

func TestOnNoteUpdateRemovesOldPathOnRename(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.md"), []byte("x"), 0o644))
	r := New(root, tracker.New())

	cb := r.Callbacks()
	cb.OnNoteUpdate(
		store.NoteRow{ID: "n1", Path: "old.md", Content: "x"},
		store.NoteRow{ID: "n1", Path: "new.md", Content: "x"},
	)

	_, err := os.Stat(filepath.Join(root, "old.md"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "new.md"))
	assert.NoError(t, err)
}

func TestOnNoteDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("x"), 0o644))
	r := New(root, tracker.New())

	r.Callbacks().OnNoteDelete(store.NoteRow{ID: "n1", Path: "a.md"})

	_, err := os.Stat(filepath.Join(root, "a.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestOnFolderInsertCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	r := New(root, tracker.New())

	r.Callbacks().OnFolderInsert(store.FolderRow{Path: "projects", Name: "projects"})

	info, err := os.Stat(filepath.Join(root, "projects"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOnFolderDeleteRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects"), 0o755))
	r := New(root, tracker.New())

	r.Callbacks().OnFolderDelete(store.FolderRow{Path: "projects"})

	_, err := os.Stat(filepath.Join(root, "projects"))
	assert.True(t, os.IsNotExist(err))
}

func TestOnFolderUpdateRenamesExistingDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "old"), 0o755))
	r := New(root, tracker.New())

	r.Callbacks().OnFolderUpdate(
		store.FolderRow{Path: "old", Name: "old"},
		store.FolderRow{Path: "new", Name: "new"},
	)

	_, err := os.Stat(filepath.Join(root, "old"))
	assert.True(t, os.IsNotExist(err))
	info, err := os.Stat(filepath.Join(root, "new"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

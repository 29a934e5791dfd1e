package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteNoteCreatesFileWithFrontmatter(t *testing.T) {
	root := t.TempDir()
	note := NewNote("id-1", "Projects/Idea.md", "hello world", "{}", 0, 0, 1700000000000)

	require.NoError(t, WriteNote(root, note))

	data, err := os.ReadFile(filepath.Join(root, "Projects/Idea.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "spacetime_id: id-1")
	require.Contains(t, string(data), "hello world")
}

func TestWriteNotePreservesNonIdentityFrontmatter(t *testing.T) {
	root := t.TempDir()
	note := NewNote("id-1", "Idea.md", "hello world", `{"title":"Idea","tags":["a","b"]}`, 0, 0, 0)

	require.NoError(t, WriteNote(root, note))

	data, err := os.ReadFile(filepath.Join(root, "Idea.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "spacetime_id: id-1")
	require.Contains(t, string(data), "title: Idea")
	require.Contains(t, string(data), "- a")
	require.Contains(t, string(data), "- b")
	require.Contains(t, string(data), "hello world")
}

func TestWriteNoteSyncsModTime(t *testing.T) {
	root := t.TempDir()
	note := NewNote("id-1", "Idea.md", "hello", "{}", 0, 0, 1700000000000)
	require.NoError(t, WriteNote(root, note))

	info, err := os.Stat(filepath.Join(root, "Idea.md"))
	require.NoError(t, err)
	require.Equal(t, int64(1700000000000), info.ModTime().UnixMilli())
}

func TestWriteNoteRejectsEscape(t *testing.T) {
	root := t.TempDir()
	note := NewNote("id-1", "../escape.md", "hello", "{}", 0, 0, 0)
	err := WriteNote(root, note)
	require.Error(t, err)
}

func TestRemoveNoteIgnoresMissing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, RemoveNote(root, "nonexistent.md"))
}

func TestRemoveNoteDeletesExisting(t *testing.T) {
	root := t.TempDir()
	note := NewNote("id-1", "Idea.md", "hello", "{}", 0, 0, 0)
	require.NoError(t, WriteNote(root, note))
	require.NoError(t, RemoveNote(root, "Idea.md"))

	_, err := os.Stat(filepath.Join(root, "Idea.md"))
	require.True(t, os.IsNotExist(err))
}

func TestEnsureAndRemoveFolder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureFolder(root, "Projects/Sub"))

	info, err := os.Stat(filepath.Join(root, "Projects/Sub"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.NoError(t, RemoveFolder(root, "Projects"))
	_, err = os.Stat(filepath.Join(root, "Projects"))
	require.True(t, os.IsNotExist(err))
}

package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestScanNotesSkipsHiddenAndUnidentified(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Idea.md", "---\nspacetime_id: id-1\n---\nhello")
	writeFile(t, root, "no-id.md", "just a body")
	writeFile(t, root, ".hidden/secret.md", "---\nspacetime_id: id-2\n---\nsecret")
	writeFile(t, root, "@eaDir/thumb.md", "---\nspacetime_id: id-3\n---\nthumb")
	writeFile(t, root, "notes.txt", "not markdown")

	notes, err := ScanNotes(root)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "id-1", notes[0].ID)
	require.Equal(t, "hello", notes[0].Content)
}

func TestScanFoldersExcludesRootAndHidden(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Projects/Sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	folders, err := ScanFolders(root)
	require.NoError(t, err)

	var paths []string
	for _, f := range folders {
		paths = append(paths, f.Path)
	}
	require.ElementsMatch(t, []string{"Projects", "Projects/Sub"}, paths)
}

func TestReadNoteAtMissingFile(t *testing.T) {
	root := t.TempDir()
	note, err := ReadNoteAt(root, filepath.Join(root, "missing.md"))
	require.NoError(t, err)
	require.Nil(t, note)
}

func TestReadNoteAtNonMarkdown(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "content")
	note, err := ReadNoteAt(root, filepath.Join(root, "file.txt"))
	require.NoError(t, err)
	require.Nil(t, note)
}

func TestReadNoteAtExtractsIDAndBody(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Idea.md", "---\nspacetime_id: id-1\ntitle: x\n---\nhello world")

	note, err := ReadNoteAt(root, filepath.Join(root, "Idea.md"))
	require.NoError(t, err)
	require.NotNil(t, note)
	require.Equal(t, "id-1", note.ID)
	require.Equal(t, "hello world", note.Content)
	require.Equal(t, "Idea.md", note.Path)
}

func TestScanForNoteByIDFindsMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\nspacetime_id: id-1\n---\na")
	writeFile(t, root, "Sub/b.md", "---\nspacetime_id: id-2\n---\nb")

	note, err := ScanForNoteByID(root, "id-2")
	require.NoError(t, err)
	require.NotNil(t, note)
	require.Equal(t, "Sub/b.md", note.Path)
}

func TestScanForNoteByIDNoMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "---\nspacetime_id: id-1\n---\na")

	note, err := ScanForNoteByID(root, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, note)
}

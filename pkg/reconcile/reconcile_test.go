package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
)

type fakeAdapter struct {
	notes       []store.NoteRow
	folders     []store.FolderRow
	upserted    []store.NoteRow
	newFolders  []string
}

func (f *fakeAdapter) ListNotes() ([]store.NoteRow, error)     { return f.notes, nil }
func (f *fakeAdapter) ListFolders() ([]store.FolderRow, error) { return f.folders, nil }
func (f *fakeAdapter) UpsertNote(n store.NoteRow) error {
	f.upserted = append(f.upserted, n)
	return nil
}
func (f *fakeAdapter) CreateFolder(path string) error {
	f.newFolders = append(f.newFolders, path)
	return nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestRunPullsRemoteOnlyNoteToDisk(t *testing.T) {
	root := t.TempDir()
	adapter := &fakeAdapter{
		notes: []store.NoteRow{{ID: "n1", Path: "a.md", Content: "hello", ModifiedTime: 10}},
	}
	tr := tracker.New()

	require.NoError(t, Run(root, adapter, tr))

	data, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.True(t, tr.HasChanged("n1", "different content"))
}

func TestRunPushesLocalOnlyNoteToRemote(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.md", "---\nspacetime_id: n2\n---\n\nbody text")
	adapter := &fakeAdapter{}
	tr := tracker.New()

	require.NoError(t, Run(root, adapter, tr))

	require.Len(t, adapter.upserted, 1)
	assert.Equal(t, "n2", adapter.upserted[0].ID)
	assert.Equal(t, "b.md", adapter.upserted[0].Path)
}

func TestRunServerWinsWhenNewer(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "c.md", "---\nspacetime_id: n3\n---\n\nold")
	adapter := &fakeAdapter{
		notes: []store.NoteRow{{ID: "n3", Path: "c.md", Content: "new from server", ModifiedTime: 9999999999999}},
	}
	tr := tracker.New()

	require.NoError(t, Run(root, adapter, tr))
	assert.Empty(t, adapter.upserted)

	data, err := os.ReadFile(filepath.Join(root, "c.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "new from server")
}

func TestRunPushesLocalOnlyFolder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects"), 0o755))
	adapter := &fakeAdapter{}
	tr := tracker.New()

	require.NoError(t, Run(root, adapter, tr))

	assert.Contains(t, adapter.newFolders, "projects")
}

func TestRunCreatesServerOnlyFolderLocally(t *testing.T) {
	root := t.TempDir()
	adapter := &fakeAdapter{
		folders: []store.FolderRow{{Path: "archive"}},
	}
	tr := tracker.New()

	require.NoError(t, Run(root, adapter, tr))

	info, err := os.Stat(filepath.Join(root, "archive"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunSkipsEaDirFoldersFromServer(t *testing.T) {
	root := t.TempDir()
	adapter := &fakeAdapter{
		folders: []store.FolderRow{{Path: "projects/@eaDir"}},
	}
	tr := tracker.New()

	require.NoError(t, Run(root, adapter, tr))

	_, err := os.Stat(filepath.Join(root, "projects/@eaDir"))
	assert.True(t, os.IsNotExist(err))
}

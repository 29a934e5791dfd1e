package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacenotes/spacenotes-sync/pkg/debounce"
	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
)

type fakeAdapter struct {
	mu        sync.Mutex
	upserted  []store.NoteRow
	deleted   []string
	moved     []store.MoveNotePayload
	folders   []string
	byPath    map[string]store.NoteRow
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{byPath: make(map[string]store.NoteRow)}
}

func (f *fakeAdapter) UpsertNote(n store.NoteRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, n)
	f.byPath[n.Path] = n
	return nil
}
func (f *fakeAdapter) DeleteNote(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeAdapter) MoveNote(p store.MoveNotePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved = append(f.moved, p)
	return nil
}
func (f *fakeAdapter) UpsertFolder(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = append(f.folders, path)
	return nil
}
func (f *fakeAdapter) DeleteFolder(path string) error { return nil }
func (f *fakeAdapter) GetNoteByPath(path string) (store.NoteRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.byPath[path]; ok {
		return n, nil
	}
	return store.NoteRow{}, store.ErrNotFound
}

func newTestWatcher(t *testing.T, root string, adapter Adapter) *Watcher {
	t.Helper()
	w, err := New(root, adapter, tracker.New())
	require.NoError(t, err)
	w.debouncer = debounce.New(30 * time.Millisecond)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherInjectsIdentityAndUpserts(t *testing.T) {
	root := t.TempDir()
	adapter := newFakeAdapter()
	newTestWatcher(t, root, adapter)

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("hello world"), 0o644))

	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return len(adapter.upserted) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give the self-triggered write-back event (from injecting the id)
	// time to settle before inspecting the final file contents.
	time.Sleep(200 * time.Millisecond)

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "spacetime_id:")
}

func TestWatcherIgnoresHiddenPaths(t *testing.T) {
	root := t.TempDir()
	adapter := newFakeAdapter()
	newTestWatcher(t, root, adapter)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".obsidian"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".obsidian", "note.md"), []byte("x"), 0o644))

	time.Sleep(150 * time.Millisecond)
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	assert.Empty(t, adapter.upserted)
}

func TestWatcherTracksNewFolder(t *testing.T) {
	root := t.TempDir()
	adapter := newFakeAdapter()
	newTestWatcher(t, root, adapter)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects"), 0o755))

	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		for _, f := range adapter.folders {
			if f == "projects" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherDeletionRemovesKnownNote(t *testing.T) {
	root := t.TempDir()
	adapter := newFakeAdapter()
	w := newTestWatcher(t, root, adapter)
	w.SeedKnownNote("note.md", "fixed-id")

	notePath := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("---\nspacetime_id: fixed-id\n---\n\nhi"), 0o644))
	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return len(adapter.upserted) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(notePath))
	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		for _, id := range adapter.deleted {
			if id == "fixed-id" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

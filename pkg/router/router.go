// Package router applies remote table store row changes back to the
// filesystem, the mirror image of the watcher: where the watcher turns
// disk events into reducer calls, the router turns reducer results
// (including ones this process originated) back into disk writes,
// suppressing its own echoes the same way.
package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
	"github.com/spacenotes/spacenotes-sync/pkg/vault"
)

// Router wires a store.Adapter's row callbacks to filesystem writes.
type Router struct {
	vaultPath string
	tracker   *tracker.Tracker
}

// New returns a Router that writes into vaultPath.
func New(vaultPath string, t *tracker.Tracker) *Router {
	return &Router{vaultPath: vaultPath, tracker: t}
}

// Callbacks builds the store.RowCallbacks this router handles.
func (r *Router) Callbacks() store.RowCallbacks {
	return store.RowCallbacks{
		OnNoteInsert:   r.onNoteInsert,
		OnNoteUpdate:   r.onNoteUpdate,
		OnNoteDelete:   r.onNoteDelete,
		OnFolderInsert: r.onFolderInsert,
		OnFolderUpdate: r.onFolderUpdate,
		OnFolderDelete: r.onFolderDelete,
	}
}

func (r *Router) onNoteInsert(n store.NoteRow) {
	if !r.tracker.IsModified(n.ID, n.Content) {
		return // echo of a note this process just wrote to the remote store
	}
	r.writeNote(n)
}

func (r *Router) onNoteUpdate(old, new store.NoteRow) {
	pathChanged := old.Path != "" && old.Path != new.Path
	contentChanged := r.tracker.HasChanged(new.ID, new.Content)

	if !pathChanged && !contentChanged {
		r.tracker.Update(new.ID, new.Content)
		return // echo: neither the path nor the content actually moved
	}

	if pathChanged {
		if err := vault.RemoveNote(r.vaultPath, old.Path); err != nil {
			log.Error().Err(err).Str("id", new.ID).Str("old_path", old.Path).Msg("router: failed to remove old path after rename")
		}
	}

	r.writeNote(new)
}

func (r *Router) onNoteDelete(n store.NoteRow) {
	r.tracker.Remove(n.ID)
	if err := vault.RemoveNote(r.vaultPath, n.Path); err != nil {
		log.Error().Err(err).Str("id", n.ID).Str("path", n.Path).Msg("router: failed to remove deleted note")
	}
}

func (r *Router) writeNote(n store.NoteRow) {
	r.tracker.Update(n.ID, n.Content)
	note := vault.NewNote(n.ID, n.Path, n.Content, n.Frontmatter, n.Size, n.CreatedTime, n.ModifiedTime)
	if err := vault.WriteNote(r.vaultPath, note); err != nil {
		log.Error().Err(err).Str("id", n.ID).Str("path", n.Path).Msg("router: failed to write note to disk")
	}
}

func (r *Router) onFolderInsert(f store.FolderRow) {
	if shouldSkipFolder(f.Name) {
		return
	}
	if err := vault.EnsureFolder(r.vaultPath, f.Path); err != nil {
		log.Error().Err(err).Str("path", f.Path).Msg("router: failed to create folder")
	}
}

func (r *Router) onFolderUpdate(old, new store.FolderRow) {
	if old.Path == "" || old.Path == new.Path {
		if err := vault.EnsureFolder(r.vaultPath, new.Path); err != nil {
			log.Error().Err(err).Str("path", new.Path).Msg("router: failed to ensure folder")
		}
		return
	}

	oldAbs, err1 := resolveWithinVault(r.vaultPath, old.Path)
	newAbs, err2 := resolveWithinVault(r.vaultPath, new.Path)
	if err1 != nil || err2 != nil {
		log.Error().Str("old_path", old.Path).Str("new_path", new.Path).Msg("router: refusing folder rename outside vault")
		return
	}
	if _, err := os.Stat(oldAbs); err == nil {
		if err := os.Rename(oldAbs, newAbs); err != nil {
			log.Error().Err(err).Str("old_path", old.Path).Str("new_path", new.Path).Msg("router: failed to rename folder")
		}
		return
	}
	if err := vault.EnsureFolder(r.vaultPath, new.Path); err != nil {
		log.Error().Err(err).Str("path", new.Path).Msg("router: failed to create renamed folder")
	}
}

func (r *Router) onFolderDelete(f store.FolderRow) {
	if err := vault.RemoveFolder(r.vaultPath, f.Path); err != nil {
		log.Error().Err(err).Str("path", f.Path).Msg("router: failed to remove folder")
	}
}

func shouldSkipFolder(name string) bool {
	return name == "@eaDir"
}

func resolveWithinVault(vaultRoot, relPath string) (string, error) {
	absRoot, err := filepath.Abs(vaultRoot)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(absRoot, filepath.FromSlash(relPath))
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("router: path %q escapes vault", relPath)
	}
	return joined, nil
}

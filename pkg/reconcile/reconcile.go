// Package reconcile performs the startup merge between the on-disk vault
// and the remote table store: the one moment both sides are compared
// directly by id/path rather than reacting to a single change event.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
	"github.com/spacenotes/spacenotes-sync/pkg/vault"
)

// Adapter is the subset of *store.Adapter reconcile needs, narrowed so
// tests can supply a fake.
type Adapter interface {
	ListNotes() ([]store.NoteRow, error)
	ListFolders() ([]store.FolderRow, error)
	UpsertNote(n store.NoteRow) error
	CreateFolder(path string) error
}

// Run compares every note known locally against every note known to the
// remote store and reconciles the two, recording every note it touches in
// t so the watcher and subscription router don't immediately re-propagate
// the reconciler's own writes as if they were fresh user edits.
//
// Folder reconciliation is two-directional: a folder that exists only on
// disk is pushed to the remote store, and a folder that exists only on the
// remote store is created locally (skipping any whose path contains
// @eaDir). A folder deleted remotely while the process was offline is
// never deleted locally — the notes that would have cascaded with it are
// handled by the note-level merge instead, and an empty local folder is
// harmless.
func Run(vaultPath string, adapter Adapter, t *tracker.Tracker) error {
	localNotes, err := vault.ScanNotes(vaultPath)
	if err != nil {
		return fmt.Errorf("reconcile: scan local notes: %w", err)
	}
	remoteNotes, err := adapter.ListNotes()
	if err != nil {
		return fmt.Errorf("reconcile: list remote notes: %w", err)
	}

	localByID := make(map[string]vault.Note, len(localNotes))
	for _, n := range localNotes {
		localByID[n.ID] = n
	}
	remoteByID := make(map[string]store.NoteRow, len(remoteNotes))
	for _, n := range remoteNotes {
		remoteByID[n.ID] = n
	}

	for id, local := range localByID {
		remote, ok := remoteByID[id]
		if !ok {
			if err := pushLocalNote(adapter, t, local); err != nil {
				return err
			}
			continue
		}
		if err := mergeNote(vaultPath, adapter, t, local, remote); err != nil {
			return err
		}
	}

	for id, remote := range remoteByID {
		if _, ok := localByID[id]; ok {
			continue
		}
		if err := pullRemoteNote(vaultPath, t, remote); err != nil {
			return err
		}
	}

	return reconcileFolders(vaultPath, adapter)
}

func mergeNote(vaultPath string, adapter Adapter, t *tracker.Tracker, local vault.Note, remote store.NoteRow) error {
	switch {
	case remote.ModifiedTime > local.ModifiedTime:
		return pullRemoteNote(vaultPath, t, remote)
	case local.ModifiedTime > remote.ModifiedTime:
		return pushLocalNote(adapter, t, local)
	default:
		t.Update(local.ID, local.Content)
		return nil
	}
}

func pushLocalNote(adapter Adapter, t *tracker.Tracker, local vault.Note) error {
	t.Update(local.ID, local.Content)
	row := store.NoteRow{
		ID:           local.ID,
		Path:         local.Path,
		Name:         local.Name,
		Content:      local.Content,
		FolderPath:   local.FolderPath,
		Depth:        local.Depth,
		Frontmatter:  local.Frontmatter,
		Size:         local.Size,
		CreatedTime:  local.CreatedTime,
		ModifiedTime: local.ModifiedTime,
	}
	if err := adapter.UpsertNote(row); err != nil {
		return fmt.Errorf("reconcile: upsert local note %s to remote: %w", local.ID, err)
	}
	log.Info().Str("id", local.ID).Str("path", local.Path).Msg("reconcile: pushed local-only note to remote")
	return nil
}

func pullRemoteNote(vaultPath string, t *tracker.Tracker, remote store.NoteRow) error {
	note := vault.NewNote(remote.ID, remote.Path, remote.Content, remote.Frontmatter, remote.Size, remote.CreatedTime, remote.ModifiedTime)
	t.Update(remote.ID, remote.Content)
	if err := vault.WriteNote(vaultPath, note); err != nil {
		return fmt.Errorf("reconcile: write remote note %s to disk: %w", remote.ID, err)
	}
	log.Info().Str("id", remote.ID).Str("path", remote.Path).Msg("reconcile: wrote remote note to disk")
	return nil
}

func reconcileFolders(vaultPath string, adapter Adapter) error {
	localFolders, err := vault.ScanFolders(vaultPath)
	if err != nil {
		return fmt.Errorf("reconcile: scan local folders: %w", err)
	}
	remoteFolders, err := adapter.ListFolders()
	if err != nil {
		return fmt.Errorf("reconcile: list remote folders: %w", err)
	}

	localSet := make(map[string]bool, len(localFolders))
	for _, f := range localFolders {
		localSet[f.Path] = true
	}
	remoteSet := make(map[string]bool, len(remoteFolders))
	for _, f := range remoteFolders {
		remoteSet[f.Path] = true
	}

	for _, f := range localFolders {
		if remoteSet[f.Path] {
			continue
		}
		if err := adapter.CreateFolder(f.Path); err != nil {
			return fmt.Errorf("reconcile: push local-only folder %s: %w", f.Path, err)
		}
		log.Info().Str("path", f.Path).Msg("reconcile: pushed local-only folder to remote")
	}

	for _, f := range remoteFolders {
		if localSet[f.Path] || strings.Contains(f.Path, "@eaDir") {
			continue
		}
		if err := vault.EnsureFolder(vaultPath, f.Path); err != nil {
			return fmt.Errorf("reconcile: create server-only folder %s locally: %w", f.Path, err)
		}
		log.Info().Str("path", f.Path).Msg("reconcile: created server-only folder locally")
	}
	return nil
}

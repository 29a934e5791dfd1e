// Package watcher turns raw filesystem events into remote table store
// mutations: debouncing bursts of writes, injecting identity into freshly
// created notes, and suppressing echoes of changes this process itself
// just applied to disk.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/spacenotes/spacenotes-sync/pkg/debounce"
	"github.com/spacenotes/spacenotes-sync/pkg/frontmatter"
	"github.com/spacenotes/spacenotes-sync/pkg/sanitize"
	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
	"github.com/spacenotes/spacenotes-sync/pkg/vault"
)

// Adapter is the subset of *store.Adapter the watcher needs.
type Adapter interface {
	UpsertNote(n store.NoteRow) error
	DeleteNote(id string) error
	MoveNote(p store.MoveNotePayload) error
	UpsertFolder(path string) error
	DeleteFolder(path string) error
	GetNoteByPath(path string) (store.NoteRow, error)
}

// Watcher watches a vault directory tree and propagates local changes to
// adapter, recording every write it originates in tracker so the
// subscription router recognizes the resulting echo and drops it.
type Watcher struct {
	vaultPath string
	adapter   Adapter
	tracker   *tracker.Tracker
	debouncer *debounce.Debouncer
	fsw       *fsnotify.Watcher

	mu           sync.Mutex
	pathToID     map[string]string // last known relative path -> note id, for deletion lookups
	knownFolders map[string]bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Watcher rooted at vaultPath. Call Start to begin watching.
func New(vaultPath string, adapter Adapter, t *tracker.Tracker) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		vaultPath:    vaultPath,
		adapter:      adapter,
		tracker:      t,
		debouncer:    debounce.New(debounce.DefaultWindow),
		fsw:          fsw,
		pathToID:     make(map[string]string),
		knownFolders: make(map[string]bool),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	if err := w.addTreeWatches(vaultPath); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// SeedKnownNote lets the reconciler or an initial scan register a path's
// id before the watcher sees any event for it, so a later deletion of
// that path can still be attributed to the right note.
func (w *Watcher) SeedKnownNote(relPath, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pathToID[relPath] = id
}

func (w *Watcher) addTreeWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldIgnoreSegment(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		if path != root {
			rel := w.relPath(path)
			w.mu.Lock()
			w.knownFolders[rel] = true
			w.mu.Unlock()
		}
		return nil
	})
}

func shouldIgnoreSegment(name string) bool {
	return strings.HasPrefix(name, ".") || name == "@eaDir"
}

func ignoredPath(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if shouldIgnoreSegment(seg) {
			return true
		}
	}
	return false
}

// Start begins processing filesystem events in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop halts the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.debouncer.Stop()
	w.fsw.Close()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher: fsnotify error")
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel := w.relPath(event.Name)
	if rel == "" || ignoredPath(rel) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTreeWatches(event.Name); err != nil {
				log.Warn().Err(err).Str("path", event.Name).Msg("watcher: failed to watch new directory")
			}
		}
	}

	w.debouncer.Trigger(event.Name, func() {
		w.process(event.Name)
	})
}

func (w *Watcher) relPath(absPath string) string {
	rel, err := filepath.Rel(w.vaultPath, absPath)
	if err != nil {
		return ""
	}
	return sanitize.Path(filepath.ToSlash(rel))
}

func (w *Watcher) process(absPath string) {
	rel := w.relPath(absPath)
	if rel == "" || ignoredPath(rel) {
		return
	}

	if filepath.Ext(absPath) == ".md" {
		w.processNotePath(rel, absPath)
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.processMissingDirectory(rel)
		}
		return
	}
	if info.IsDir() {
		w.processFolderPath(rel)
	}
}

func (w *Watcher) processNotePath(rel, absPath string) {
	note, err := vault.ReadNoteAt(w.vaultPath, absPath)
	if err != nil {
		log.Warn().Err(err).Str("path", rel).Msg("watcher: failed to read note")
		return
	}
	if note == nil {
		w.handleNoteDeletion(rel)
		return
	}

	if note.ID == "" {
		injected, ok := w.injectIdentity(absPath, rel, note)
		if !ok {
			return
		}
		note = injected
	}

	w.mu.Lock()
	w.pathToID[rel] = note.ID
	w.mu.Unlock()

	if !w.tracker.IsModified(note.ID, note.Content) {
		return // echo of our own recent write
	}

	row := store.NoteRow{
		ID:           note.ID,
		Path:         note.Path,
		Name:         note.Name,
		Content:      note.Content,
		FolderPath:   note.FolderPath,
		Depth:        note.Depth,
		Frontmatter:  note.Frontmatter,
		Size:         note.Size,
		CreatedTime:  note.CreatedTime,
		ModifiedTime: note.ModifiedTime,
	}
	if err := w.adapter.UpsertNote(row); err != nil {
		log.Error().Err(err).Str("path", rel).Msg("watcher: failed to upsert note")
	}
}

// injectIdentity assigns a fresh id to a note that has none, refusing to
// do so when that would create a split-brain: a different note already
// claims this path remotely, or the raw file already contains a
// (presumably malformed) spacetime_id key that a blind injection would
// shadow with a second one.
func (w *Watcher) injectIdentity(absPath, rel string, note *vault.Note) (*vault.Note, bool) {
	if existing, err := w.adapter.GetNoteByPath(rel); err == nil && existing.ID != "" {
		log.Warn().Str("path", rel).Str("existing_id", existing.ID).
			Msg("watcher: refusing to inject id, path already claimed remotely")
		return nil, false
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		log.Warn().Err(err).Str("path", rel).Msg("watcher: failed to re-read note before id injection")
		return nil, false
	}
	if strings.Contains(string(raw), frontmatter.IDKey+":") {
		log.Warn().Str("path", rel).Msg("watcher: refusing to inject id, raw content already mentions an id key")
		return nil, false
	}

	id := uuid.NewString()
	injected := frontmatter.Inject(string(raw), id)
	if err := os.WriteFile(absPath, []byte(injected), 0o644); err != nil {
		log.Error().Err(err).Str("path", rel).Msg("watcher: failed to write injected id back to disk")
		return nil, false
	}

	body, fm := frontmatter.Parse(injected)
	updated := vault.NewNote(id, note.Path, body, fm, uint64(len(injected)), note.CreatedTime, note.ModifiedTime)
	return &updated, true
}

func (w *Watcher) handleNoteDeletion(rel string) {
	w.mu.Lock()
	id, known := w.pathToID[rel]
	delete(w.pathToID, rel)
	w.mu.Unlock()

	if !known {
		existing, err := w.adapter.GetNoteByPath(rel)
		if err != nil {
			log.Debug().Str("path", rel).Msg("watcher: deletion of an untracked note, ignoring")
			return
		}
		id = existing.ID
	}

	w.tracker.Remove(id)
	if err := w.adapter.DeleteNote(id); err != nil {
		log.Error().Err(err).Str("path", rel).Msg("watcher: failed to delete note remotely")
	}
}

func (w *Watcher) processFolderPath(rel string) {
	w.mu.Lock()
	w.knownFolders[rel] = true
	w.mu.Unlock()
	if err := w.adapter.UpsertFolder(rel); err != nil {
		log.Error().Err(err).Str("path", rel).Msg("watcher: failed to upsert folder")
	}
}

// processMissingDirectory handles an extensionless path that has vanished
// from disk. Before treating it as a folder delete, it gives every note
// this process last knew to live under that folder a chance to turn up
// elsewhere in the vault (an OS-level rename of the folder surfaces here
// as a delete of the old path plus creates for the new files, and the
// notes should move rather than be deleted).
func (w *Watcher) processMissingDirectory(rel string) {
	w.mu.Lock()
	known := w.knownFolders[rel]
	var affected []string
	for path, id := range w.pathToID {
		if strings.HasPrefix(path, rel+"/") {
			affected = append(affected, id)
		}
	}
	delete(w.knownFolders, rel)
	w.mu.Unlock()

	if !known {
		return
	}

	for _, id := range affected {
		if recovered, err := vault.ScanForNoteByID(w.vaultPath, id); err == nil && recovered != nil {
			w.mu.Lock()
			oldPath := ""
			for p, pid := range w.pathToID {
				if pid == id {
					oldPath = p
				}
			}
			w.pathToID[recovered.Path] = id
			w.mu.Unlock()
			if oldPath != "" && oldPath != recovered.Path {
				if err := w.adapter.MoveNote(store.MoveNotePayload{OldPath: oldPath, NewPath: recovered.Path}); err != nil {
					log.Error().Err(err).Str("id", id).Msg("watcher: failed to move recovered note remotely")
				}
			}
		}
	}

	if err := w.adapter.DeleteFolder(rel); err != nil {
		log.Error().Err(err).Str("path", rel).Msg("watcher: failed to delete folder remotely")
	}
}

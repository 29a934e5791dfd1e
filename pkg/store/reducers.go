package store

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// Reducers are idempotent in the sense the spec mandates: an illegal
// precondition (missing id, path collision, ...) logs a warning and
// returns a nil change rather than an error. A non-nil error here means
// the row store itself failed (sqlite I/O), which does propagate to the
// Raft apply future.

// CreateNotePayload is the payload for OpCreateNote.
type CreateNotePayload struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	Content      string `json:"content"`
	Frontmatter  string `json:"frontmatter"`
	Size         uint64 `json:"size"`
	CreatedTime  uint64 `json:"created_time"`
	ModifiedTime uint64 `json:"modified_time"`
}

func reduceCreateNote(rows RowStore, now uint64, p CreateNotePayload) (*RowChange, error) {
	if _, err := rows.GetNote(p.ID); err == nil {
		log.Warn().Str("id", p.ID).Msg("store: create_note noop, id already exists")
		return nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := rows.GetNoteByPath(p.Path); err == nil {
		log.Warn().Str("path", p.Path).Msg("store: create_note noop, path already exists")
		return nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	n := deriveNoteFields(p.ID, p.Path, p.Content, p.Frontmatter, p.Size, p.CreatedTime, p.ModifiedTime, now)
	if err := rows.CreateNote(n); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: RowInserted, Note: &n}, nil
}

// UpdateNoteContentPayload is the payload for OpUpdateNoteContent.
type UpdateNoteContentPayload struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	Frontmatter  string `json:"frontmatter"`
	Size         uint64 `json:"size"`
	ModifiedTime uint64 `json:"modified_time"`
}

func reduceUpdateNoteContent(rows RowStore, now uint64, p UpdateNoteContentPayload) (*RowChange, error) {
	existing, err := rows.GetNote(p.ID)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("id", p.ID).Msg("store: update_note_content noop, id not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	old := existing
	existing.Content = p.Content
	existing.Frontmatter = p.Frontmatter
	existing.Size = p.Size
	existing.ModifiedTime = p.ModifiedTime
	existing.DBUpdatedAt = now
	if err := rows.UpdateNote(existing); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: RowUpdated, Old: &old, Note: &existing}, nil
}

// RenameNotePayload is the payload for OpRenameNote.
type RenameNotePayload struct {
	ID      string `json:"id"`
	NewPath string `json:"new_path"`
}

func reduceRenameNote(rows RowStore, now uint64, p RenameNotePayload) (*RowChange, error) {
	existing, err := rows.GetNote(p.ID)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("id", p.ID).Msg("store: rename_note noop, id not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if other, err := rows.GetNoteByPath(p.NewPath); err == nil && other.ID != p.ID {
		log.Warn().Str("path", p.NewPath).Msg("store: rename_note aborted, destination path taken")
		return nil, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	old := existing
	existing.Path = p.NewPath
	existing.Name = noteName(p.NewPath)
	existing.FolderPath = noteFolderPath(p.NewPath)
	existing.Depth = pathDepth(p.NewPath)
	existing.DBUpdatedAt = now
	if err := rows.UpdateNote(existing); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: RowUpdated, Old: &old, Note: &existing}, nil
}

// DeleteNotePayload is the payload for OpDeleteNote.
type DeleteNotePayload struct {
	ID string `json:"id"`
}

func reduceDeleteNote(rows RowStore, p DeleteNotePayload) (*RowChange, error) {
	existing, err := rows.GetNote(p.ID)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("id", p.ID).Msg("store: delete_note noop, id not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := rows.DeleteNote(p.ID); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: RowDeleted, Note: &existing}, nil
}

// MoveNotePayload is the payload for OpMoveNote.
type MoveNotePayload struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func reduceMoveNote(rows RowStore, now uint64, p MoveNotePayload) (*RowChange, error) {
	existing, err := rows.GetNoteByPath(p.OldPath)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("path", p.OldPath).Msg("store: move_note noop, source path not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reduceRenameNote(rows, now, RenameNotePayload{ID: existing.ID, NewPath: p.NewPath})
}

// UpsertNotePayload is the payload for OpUpsertNote: a full row.
type UpsertNotePayload = NoteRow

func reduceUpsertNote(rows RowStore, now uint64, p UpsertNotePayload) (*RowChange, error) {
	kind := RowInserted
	var old *NoteRow
	if existing, err := rows.GetNote(p.ID); err == nil {
		o := existing
		old = &o
		kind = RowUpdated
		if err := rows.DeleteNote(p.ID); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	n := p
	n.DBUpdatedAt = now
	if err := rows.CreateNote(n); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: kind, Old: old, Note: &n}, nil
}

// AppendToNotePayload is the payload for OpAppendToNote and OpPrependToNote.
type AppendToNotePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func reduceAppendToNote(rows RowStore, now uint64, p AppendToNotePayload, prepend bool) (*RowChange, error) {
	existing, err := rows.GetNoteByPath(p.Path)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("path", p.Path).Msg("store: append/prepend_to_note noop, path not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	old := existing
	if prepend {
		existing.Content = p.Content + existing.Content
	} else {
		existing.Content = existing.Content + p.Content
	}
	existing.Size = uint64(len(existing.Content))
	existing.ModifiedTime = now
	existing.DBUpdatedAt = now
	if err := rows.UpdateNote(existing); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: RowUpdated, Old: &old, Note: &existing}, nil
}

// FindReplaceInNotePayload is the payload for OpFindReplaceInNote.
type FindReplaceInNotePayload struct {
	Path       string `json:"path"`
	Old        string `json:"old"`
	New        string `json:"new"`
	ReplaceAll bool   `json:"replace_all"`
}

func reduceFindReplaceInNote(rows RowStore, now uint64, p FindReplaceInNotePayload) (*RowChange, error) {
	existing, err := rows.GetNoteByPath(p.Path)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("path", p.Path).Msg("store: find_replace_in_note noop, path not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var replaced string
	if p.ReplaceAll {
		replaced = strings.ReplaceAll(existing.Content, p.Old, p.New)
	} else {
		replaced = strings.Replace(existing.Content, p.Old, p.New, 1)
	}
	if replaced == existing.Content {
		log.Warn().Str("path", p.Path).Msg("store: find_replace_in_note noop, no match")
		return nil, nil
	}

	old := existing
	existing.Content = replaced
	existing.Size = uint64(len(replaced))
	existing.DBUpdatedAt = now
	if err := rows.UpdateNote(existing); err != nil {
		return nil, err
	}
	return &RowChange{Table: "note", Kind: RowUpdated, Old: &old, Note: &existing}, nil
}

// CreateFolderPayload is the payload for OpCreateFolder.
type CreateFolderPayload struct {
	Path string `json:"path"`
}

func reduceCreateFolder(rows RowStore, p CreateFolderPayload) (*RowChange, error) {
	norm := normalizeFolderPath(p.Path)
	if _, err := rows.GetFolder(norm); err == nil {
		log.Warn().Str("path", norm).Msg("store: create_folder noop, already exists")
		return nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	f := FolderRow{Path: norm, Name: folderName(norm), Depth: pathDepth(norm)}
	if err := rows.CreateFolder(f); err != nil {
		return nil, err
	}
	return &RowChange{Table: "folder", Kind: RowInserted, Folder: &f}, nil
}

// UpsertFolderPayload is the payload for OpUpsertFolder.
type UpsertFolderPayload struct {
	Path string `json:"path"`
}

func reduceUpsertFolder(rows RowStore, p UpsertFolderPayload) (*RowChange, error) {
	norm := normalizeFolderPath(p.Path)
	kind := RowInserted
	if _, err := rows.GetFolder(norm); err == nil {
		kind = RowUpdated
		if err := rows.DeleteFolder(norm); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	f := FolderRow{Path: norm, Name: folderName(norm), Depth: pathDepth(norm)}
	if err := rows.CreateFolder(f); err != nil {
		return nil, err
	}
	return &RowChange{Table: "folder", Kind: kind, Folder: &f}, nil
}

// DeleteFolderPayload is the payload for OpDeleteFolder.
type DeleteFolderPayload struct {
	Path string `json:"path"`
}

// reduceDeleteFolder performs the cascading delete described in spec §4.7:
// every note under the folder, every descendant folder, and finally the
// folder row itself. It returns the full list of row changes produced,
// since a single cascade touches many rows.
func reduceDeleteFolder(rows RowStore, p DeleteFolderPayload) ([]RowChange, error) {
	norm := normalizeFolderPath(p.Path)

	if _, err := rows.GetFolder(norm); errors.Is(err, ErrNotFound) {
		log.Warn().Str("path", norm).Msg("store: delete_folder noop, folder not found")
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var changes []RowChange

	notesUnder, err := rows.ListNotesByFolderPrefix(norm + "/")
	if err != nil {
		return nil, err
	}
	for _, n := range notesUnder {
		if err := rows.DeleteNote(n.ID); err != nil {
			return nil, err
		}
		nCopy := n
		changes = append(changes, RowChange{Table: "note", Kind: RowDeleted, Note: &nCopy})
	}

	subfolders, err := rows.ListFoldersByPathPrefix(norm)
	if err != nil {
		return nil, err
	}
	for _, f := range subfolders {
		if f.Path == norm || !isSubPath(norm, f.Path) {
			continue
		}
		if err := rows.DeleteFolder(f.Path); err != nil {
			return nil, err
		}
		fCopy := f
		changes = append(changes, RowChange{Table: "folder", Kind: RowDeleted, Folder: &fCopy})
	}

	root, err := rows.GetFolder(norm)
	if err != nil {
		return nil, err
	}
	if err := rows.DeleteFolder(norm); err != nil {
		return nil, err
	}
	changes = append(changes, RowChange{Table: "folder", Kind: RowDeleted, Folder: &root})

	return changes, nil
}

// MoveFolderPayload is the payload for OpMoveFolder.
type MoveFolderPayload struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// reduceMoveFolder performs the cascading rename described in spec §4.7.
func reduceMoveFolder(rows RowStore, now uint64, p MoveFolderPayload) ([]RowChange, error) {
	oldNorm := normalizeFolderPath(p.OldPath)
	newNorm := normalizeFolderPath(p.NewPath)

	src, err := rows.GetFolder(oldNorm)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("path", oldNorm).Msg("store: move_folder aborted, source not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := rows.GetFolder(newNorm); err == nil {
		log.Warn().Str("path", newNorm).Msg("store: move_folder aborted, destination exists")
		return nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var changes []RowChange

	notesUnder, err := rows.ListNotesByFolderPrefix(oldNorm + "/")
	if err != nil {
		return nil, err
	}
	for _, n := range notesUnder {
		old := n
		if err := rows.DeleteNote(n.ID); err != nil {
			return nil, err
		}
		n.Path = replaceFirst(n.Path, oldNorm+"/", newNorm+"/")
		n.FolderPath = replaceFirst(n.FolderPath, oldNorm+"/", newNorm+"/")
		n.Depth = pathDepth(n.Path)
		n.DBUpdatedAt = now
		if err := rows.CreateNote(n); err != nil {
			return nil, err
		}
		changes = append(changes, RowChange{Table: "note", Kind: RowUpdated, Old: &old, Note: &n})
	}

	subfolders, err := rows.ListFoldersByPathPrefix(oldNorm)
	if err != nil {
		return nil, err
	}
	for _, f := range subfolders {
		if f.Path == oldNorm || !isSubPath(oldNorm, f.Path) {
			continue
		}
		oldF := f
		if err := rows.DeleteFolder(f.Path); err != nil {
			return nil, err
		}
		f.Path = replaceFirst(f.Path, oldNorm, newNorm)
		f.Name = folderName(f.Path)
		f.Depth = pathDepth(f.Path)
		if err := rows.CreateFolder(f); err != nil {
			return nil, err
		}
		changes = append(changes, RowChange{Table: "folder", Kind: RowUpdated, OldFolder: &oldF, Folder: &f})
	}

	if err := rows.DeleteFolder(oldNorm); err != nil {
		return nil, err
	}
	dst := FolderRow{Path: newNorm, Name: folderName(newNorm), Depth: pathDepth(newNorm)}
	if err := rows.CreateFolder(dst); err != nil {
		return nil, err
	}
	changes = append(changes, RowChange{Table: "folder", Kind: RowUpdated, OldFolder: &src, Folder: &dst})

	return changes, nil
}

func deriveNoteFields(id, path, content, frontmatter string, size, created, modified, dbUpdatedAt uint64) NoteRow {
	return NoteRow{
		ID:           id,
		Path:         path,
		Name:         noteName(path),
		Content:      content,
		FolderPath:   noteFolderPath(path),
		Depth:        pathDepth(path),
		Frontmatter:  frontmatter,
		Size:         size,
		CreatedTime:  created,
		ModifiedTime: modified,
		DBUpdatedAt:  dbUpdatedAt,
	}
}

func noteName(path string) string {
	name := strings.TrimSuffix(path, ".md")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func noteFolderPath(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx+1]
	}
	return ""
}

func folderName(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func pathDepth(path string) uint32 {
	return uint32(strings.Count(path, "/"))
}

func normalizeFolderPath(path string) string {
	return strings.TrimSuffix(path, "/")
}

// isSubPath reports whether candidate is normalized and strictly begins
// with prefix followed by a '/' or is itself longer and starts with
// prefix (the spec's un-slashed starts-with rule, which deliberately also
// matches "a" -> "ab" at the string level and relies on folder paths
// already being distinct, normalized entries).
func isSubPath(prefix, candidate string) bool {
	return strings.HasPrefix(candidate, prefix)
}

func replaceFirst(s, old, new string) string {
	idx := strings.Index(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

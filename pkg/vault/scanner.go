package vault

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spacenotes/spacenotes-sync/pkg/frontmatter"
	"github.com/spacenotes/spacenotes-sync/pkg/sanitize"
)

// shouldSkipEntry mirrors the teacher's cache walker: hidden files and
// directories, and the Synology thumbnail directory some vaults pick up
// over network shares, are never visited.
func shouldSkipEntry(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == '.' {
		return true
	}
	return name == "@eaDir"
}

// ReadNoteAt reads a single markdown file at absPath and converts it to a
// Note. It returns (nil, nil) for paths that don't exist, aren't regular
// files, or don't have a .md extension — callers treat that as "nothing to
// do" rather than an error. The note's id is whatever ExtractID finds,
// possibly empty; ReadNoteAt never injects one.
func ReadNoteAt(vaultPath, absPath string) (*Note, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if info.IsDir() || filepath.Ext(absPath) != ".md" {
		return nil, nil
	}

	relPath, err := filepath.Rel(vaultPath, absPath)
	if err != nil {
		return nil, err
	}
	relPath = sanitize.Path(filepath.ToSlash(relPath))

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	content := string(raw)

	id, _ := frontmatter.ExtractID(content)
	body, fm := frontmatter.Parse(content)

	modified := uint64(info.ModTime().UnixMilli())
	created := modified
	if ct, err := createdTime(absPath); err == nil {
		created = ct
	}

	note := NewNote(id, relPath, body, fm, uint64(info.Size()), created, modified)
	return &note, nil
}

// ScanForNoteByID walks the vault looking for a note whose front-matter
// carries targetID, stopping at the first match. The watcher uses it to
// find where a note turned up after the folder it lived in vanished from
// disk.
func ScanForNoteByID(vaultPath, targetID string) (*Note, error) {
	var found *Note
	err := filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != vaultPath && shouldSkipEntry(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipEntry(d.Name()) || filepath.Ext(path) != ".md" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("vault: failed to read candidate during id scan")
			return nil
		}
		id, ok := frontmatter.ExtractID(string(raw))
		if !ok || id != targetID {
			return nil
		}
		note, err := ReadNoteAt(vaultPath, path)
		if err != nil {
			return err
		}
		found = note
		return filepath.SkipAll
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, err
	}
	return found, nil
}

// ScanNotes walks the whole vault and returns every markdown file that
// already carries a stable id. Files without one are skipped: the watcher
// is responsible for injecting ids into freshly created notes, a scan is
// read-only.
func ScanNotes(vaultPath string) ([]Note, error) {
	var notes []Note
	err := filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != vaultPath && shouldSkipEntry(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipEntry(d.Name()) || filepath.Ext(path) != ".md" {
			return nil
		}

		note, err := ReadNoteAt(vaultPath, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("vault: failed to read note during scan")
			return nil
		}
		if note == nil {
			return nil
		}
		if note.ID == "" {
			log.Debug().Str("path", note.Path).Msg("vault: skipping note without id during scan")
			return nil
		}
		notes = append(notes, *note)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// ScanFolders walks the vault and returns every directory below the root,
// excluding the root itself and anything shouldSkipEntry rejects.
func ScanFolders(vaultPath string) ([]Folder, error) {
	var folders []Folder
	err := filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if path == vaultPath {
			return nil
		}
		if shouldSkipEntry(d.Name()) {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(vaultPath, path)
		if err != nil {
			return err
		}
		rel = sanitize.Path(filepath.ToSlash(rel))
		folders = append(folders, NewFolder(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func createdTime(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	// os.FileInfo has no portable creation time; the modification time is
	// the closest cross-platform approximation and is what gets corrected
	// once the remote store's authoritative timestamp comes back down.
	return uint64(info.ModTime().UnixMilli()), nil
}

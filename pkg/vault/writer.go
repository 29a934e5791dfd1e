package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spacenotes/spacenotes-sync/pkg/frontmatter"
)

// WriteNote renders note's frontmatter and body back to disk under
// vaultRoot, atomically. The write always goes through a temp file in the
// destination directory followed by a rename so a crash mid-write never
// leaves a half-written note behind, and the file's mtime is set to the
// note's ModifiedTime so startup reconciliation sees a clean, server-true
// timestamp rather than the time of the local write.
func WriteNote(vaultRoot string, note Note) error {
	destPath, err := safeJoin(vaultRoot, note.Path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("vault: create parent directories for %s: %w", note.Path, err)
	}

	content := frontmatter.Render(note.Frontmatter, note.ID, note.Content)

	tmpPath := destPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("vault: write temp file for %s: %w", note.Path, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("vault: rename temp file into place for %s: %w", note.Path, err)
	}

	if note.ModifiedTime > 0 {
		mtime := time.UnixMilli(int64(note.ModifiedTime))
		if err := os.Chtimes(destPath, mtime, mtime); err != nil {
			// Best effort: a stale mtime only costs an extra reconciliation pass.
			return nil
		}
	}
	return nil
}

// RemoveNote deletes the file for note.Path, ignoring a not-exist error so
// cascading deletes and out-of-order events don't fail a reducer twice.
func RemoveNote(vaultRoot string, relPath string) error {
	absPath, err := safeJoin(vaultRoot, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: remove %s: %w", relPath, err)
	}
	return nil
}

// EnsureFolder creates the directory for relPath (no trailing slash) if it
// doesn't already exist.
func EnsureFolder(vaultRoot string, relPath string) error {
	absPath, err := safeJoin(vaultRoot, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return fmt.Errorf("vault: create folder %s: %w", relPath, err)
	}
	return nil
}

// RemoveFolder removes the directory tree for relPath, ignoring a
// not-exist error.
func RemoveFolder(vaultRoot string, relPath string) error {
	absPath, err := safeJoin(vaultRoot, relPath)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(absPath); err != nil {
		return fmt.Errorf("vault: remove folder %s: %w", relPath, err)
	}
	return nil
}

// safeJoin joins vaultRoot and relPath and rejects any result that would
// escape vaultRoot, the same traversal guard the teacher applies to every
// vault-relative path it resolves.
func safeJoin(vaultRoot, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("vault: absolute paths are not allowed: %s", relPath)
	}
	cleaned := filepath.Clean(strings.TrimSpace(relPath))
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	cleaned = strings.TrimPrefix(cleaned, "."+string(filepath.Separator))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("vault: path cannot be empty")
	}

	absRoot, err := filepath.Abs(vaultRoot)
	if err != nil {
		return "", fmt.Errorf("vault: resolve vault root: %w", err)
	}

	joined := filepath.Join(absRoot, filepath.FromSlash(cleaned))
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("vault: resolve path: %w", err)
	}

	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("vault: path escapes vault: %s", relPath)
	}
	return absJoined, nil
}

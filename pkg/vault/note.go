// Package vault models the on-disk note tree and provides the scanner and
// writer that move notes between the filesystem and the in-memory row
// representation shared with the remote table store.
package vault

import "strings"

// Note is the filesystem-facing view of a row in the notes table: its
// identity, its path relative to the vault root, and the body/frontmatter
// split out of the raw file content.
type Note struct {
	ID           string
	Path         string
	Name         string
	Content      string
	FolderPath   string
	Depth        uint32
	Frontmatter  string
	Size         uint64
	CreatedTime  uint64
	ModifiedTime uint64
}

// NewNote derives Name, FolderPath and Depth from path the same way the
// remote store's row schema does, so a note built from a disk scan and one
// built from a row read are indistinguishable.
func NewNote(id, path, content, frontmatter string, size, createdTime, modifiedTime uint64) Note {
	name := strings.TrimSuffix(path, ".md")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	folderPath := ""
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		folderPath = path[:idx] + "/"
	}

	depth := uint32(strings.Count(path, "/"))

	return Note{
		ID:           id,
		Path:         path,
		Name:         name,
		Content:      content,
		FolderPath:   folderPath,
		Depth:        depth,
		Frontmatter:  frontmatter,
		Size:         size,
		CreatedTime:  createdTime,
		ModifiedTime: modifiedTime,
	}
}

// Folder is the filesystem-facing view of a row in the folders table.
type Folder struct {
	Path  string
	Name  string
	Depth uint32
}

// NewFolder derives Name and Depth from path, which carries no trailing
// slash (unlike Note.FolderPath, which always does).
func NewFolder(path string) Folder {
	trimmed := strings.TrimSuffix(path, "/")
	name := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		name = trimmed[idx+1:]
	}
	if name == "" {
		name = path
	}

	depth := uint32(strings.Count(path, "/"))

	return Folder{Path: path, Name: name, Depth: depth}
}

package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by a RowStore getter when no row matches.
var ErrNotFound = errors.New("store: row not found")

// RowStore is the CRUD surface the reducers apply against. It is
// deliberately narrow — one method per entity operation — mirroring the
// way the teacher's cluster store exposes one method per resource kind
// rather than a generic query API.
type RowStore interface {
	CreateNote(n NoteRow) error
	UpdateNote(n NoteRow) error
	DeleteNote(id string) error
	GetNote(id string) (NoteRow, error)
	GetNoteByPath(path string) (NoteRow, error)
	ListNotes() ([]NoteRow, error)
	ListNotesByFolderPrefix(prefix string) ([]NoteRow, error)
	ListNotesByFolderPath(path string) ([]NoteRow, error)
	ListRecentNotes(limit int) ([]NoteRow, error)

	CreateFolder(f FolderRow) error
	UpdateFolder(f FolderRow) error
	DeleteFolder(path string) error
	GetFolder(path string) (FolderRow, error)
	ListFolders() ([]FolderRow, error)
	ListFoldersByPathPrefix(prefix string) ([]FolderRow, error)

	ClearAll() error
	Close() error
}

// SQLiteStore is a RowStore backed by modernc.org/sqlite, the pure-Go
// driver the teacher already pulls in for its local cache.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the sqlite database at
// path and ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite + a single Raft FSM goroutine: no concurrent writers
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateNote(n NoteRow) error {
	_, err := s.db.Exec(`
		INSERT INTO notes (id, path, name, content, folder_path, depth, frontmatter, size, created_time, modified_time, db_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Path, n.Name, n.Content, n.FolderPath, n.Depth, n.Frontmatter, n.Size, n.CreatedTime, n.ModifiedTime, n.DBUpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create note %s: %w", n.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateNote(n NoteRow) error {
	res, err := s.db.Exec(`
		UPDATE notes SET path=?, name=?, content=?, folder_path=?, depth=?, frontmatter=?, size=?, created_time=?, modified_time=?, db_updated_at=?
		WHERE id=?`,
		n.Path, n.Name, n.Content, n.FolderPath, n.Depth, n.Frontmatter, n.Size, n.CreatedTime, n.ModifiedTime, n.DBUpdatedAt, n.ID)
	if err != nil {
		return fmt.Errorf("store: update note %s: %w", n.ID, err)
	}
	return requireAffected(res, ErrNotFound)
}

func (s *SQLiteStore) DeleteNote(id string) error {
	res, err := s.db.Exec(`DELETE FROM notes WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("store: delete note %s: %w", id, err)
	}
	return requireAffected(res, ErrNotFound)
}

func (s *SQLiteStore) GetNote(id string) (NoteRow, error) {
	return scanNote(s.db.QueryRow(noteSelect+`WHERE id=?`, id))
}

func (s *SQLiteStore) GetNoteByPath(path string) (NoteRow, error) {
	return scanNote(s.db.QueryRow(noteSelect+`WHERE path=?`, path))
}

func (s *SQLiteStore) ListNotes() ([]NoteRow, error) {
	rows, err := s.db.Query(noteSelect)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (s *SQLiteStore) ListNotesByFolderPrefix(prefix string) ([]NoteRow, error) {
	rows, err := s.db.Query(noteSelect+`WHERE `+prefixClause("folder_path"), len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("store: list notes under %s: %w", prefix, err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ListNotesByFolderPath lists only notes whose folder_path column is an
// exact match for path — direct children of that folder, not descendants
// under any of its subfolders.
func (s *SQLiteStore) ListNotesByFolderPath(path string) ([]NoteRow, error) {
	rows, err := s.db.Query(noteSelect+`WHERE folder_path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("store: list notes in %s: %w", path, err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (s *SQLiteStore) ListRecentNotes(limit int) ([]NoteRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(noteSelect+`ORDER BY db_updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list recent notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (s *SQLiteStore) CreateFolder(f FolderRow) error {
	_, err := s.db.Exec(`INSERT INTO folders (path, name, depth) VALUES (?, ?, ?)`, f.Path, f.Name, f.Depth)
	if err != nil {
		return fmt.Errorf("store: create folder %s: %w", f.Path, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateFolder(f FolderRow) error {
	res, err := s.db.Exec(`UPDATE folders SET name=?, depth=? WHERE path=?`, f.Name, f.Depth, f.Path)
	if err != nil {
		return fmt.Errorf("store: update folder %s: %w", f.Path, err)
	}
	return requireAffected(res, ErrNotFound)
}

func (s *SQLiteStore) DeleteFolder(path string) error {
	res, err := s.db.Exec(`DELETE FROM folders WHERE path=?`, path)
	if err != nil {
		return fmt.Errorf("store: delete folder %s: %w", path, err)
	}
	return requireAffected(res, ErrNotFound)
}

func (s *SQLiteStore) GetFolder(path string) (FolderRow, error) {
	var f FolderRow
	err := s.db.QueryRow(`SELECT path, name, depth FROM folders WHERE path=?`, path).Scan(&f.Path, &f.Name, &f.Depth)
	if errors.Is(err, sql.ErrNoRows) {
		return FolderRow{}, ErrNotFound
	}
	if err != nil {
		return FolderRow{}, fmt.Errorf("store: get folder %s: %w", path, err)
	}
	return f, nil
}

func (s *SQLiteStore) ListFolders() ([]FolderRow, error) {
	rows, err := s.db.Query(`SELECT path, name, depth FROM folders`)
	if err != nil {
		return nil, fmt.Errorf("store: list folders: %w", err)
	}
	defer rows.Close()
	return scanFolders(rows)
}

func (s *SQLiteStore) ListFoldersByPathPrefix(prefix string) ([]FolderRow, error) {
	rows, err := s.db.Query(`SELECT path, name, depth FROM folders WHERE `+prefixClause("path"), len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("store: list folders under %s: %w", prefix, err)
	}
	defer rows.Close()
	return scanFolders(rows)
}

func (s *SQLiteStore) ClearAll() error {
	if _, err := s.db.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("store: clear notes: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM folders`); err != nil {
		return fmt.Errorf("store: clear folders: %w", err)
	}
	return nil
}

const noteSelect = `SELECT id, path, name, content, folder_path, depth, frontmatter, size, created_time, modified_time, db_updated_at FROM notes `

func scanNote(row *sql.Row) (NoteRow, error) {
	var n NoteRow
	err := row.Scan(&n.ID, &n.Path, &n.Name, &n.Content, &n.FolderPath, &n.Depth, &n.Frontmatter, &n.Size, &n.CreatedTime, &n.ModifiedTime, &n.DBUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NoteRow{}, ErrNotFound
	}
	if err != nil {
		return NoteRow{}, fmt.Errorf("store: scan note: %w", err)
	}
	return n, nil
}

func scanNotes(rows *sql.Rows) ([]NoteRow, error) {
	var out []NoteRow
	for rows.Next() {
		var n NoteRow
		if err := rows.Scan(&n.ID, &n.Path, &n.Name, &n.Content, &n.FolderPath, &n.Depth, &n.Frontmatter, &n.Size, &n.CreatedTime, &n.ModifiedTime, &n.DBUpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan note row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanFolders(rows *sql.Rows) ([]FolderRow, error) {
	var out []FolderRow
	for rows.Next() {
		var f FolderRow
		if err := rows.Scan(&f.Path, &f.Name, &f.Depth); err != nil {
			return nil, fmt.Errorf("store: scan folder row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: check rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id            TEXT PRIMARY KEY,
	path          TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	content       TEXT NOT NULL,
	folder_path   TEXT NOT NULL,
	depth         INTEGER NOT NULL,
	frontmatter   TEXT NOT NULL,
	size          INTEGER NOT NULL,
	created_time  INTEGER NOT NULL,
	modified_time INTEGER NOT NULL,
	db_updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_folder_path ON notes(folder_path);
CREATE INDEX IF NOT EXISTS idx_notes_db_updated_at ON notes(db_updated_at);

CREATE TABLE IF NOT EXISTS folders (
	path  TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	depth INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_folders_path_prefix ON folders(path);
`

// prefixClause builds a WHERE fragment matching every row whose column
// begins with a literal prefix, the SQL equivalent of the reducers' Rust
// HashMap prefix scans over cascading folder operations. It deliberately
// avoids LIKE: a sanitized path routinely contains '_' (every character
// outside the sanitizer's allowed set becomes one), a LIKE wildcard, which
// would make "my_notes"
// cascade-match an unrelated "myXnotes". substr comparison treats prefix
// as a literal byte string instead. Pass len(prefix) then prefix, in that
// order, as the two placeholder arguments. prefix must already include
// the trailing separator where the original model uses one.
func prefixClause(column string) string {
	return "substr(" + column + ", 1, ?) = ?"
}

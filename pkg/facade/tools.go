package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spacenotes/spacenotes-sync/pkg/store"
)

func registerTools(s *server.MCPServer, a Adapter) {
	s.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note at the given path with the given content. Noops if the id or path already exists."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Stable note identifier")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path, e.g. folder/note.md")),
		mcp.WithString("content", mcp.Description("Note body")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.CreateNotePayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		p.Size = uint64(len(p.Content))
		return nil, a.CreateNote(p)
	}))

	s.AddTool(mcp.NewTool("update_note_content",
		mcp.WithDescription("Replace a note's content by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New body")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.UpdateNoteContentPayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		p.Size = uint64(len(p.Content))
		return nil, a.UpdateNoteContent(p)
	}))

	s.AddTool(mcp.NewTool("rename_note",
		mcp.WithDescription("Rename a note by id to a new path."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("new_path", mcp.Required(), mcp.Description("New vault-relative path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.RenameNotePayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		return nil, a.RenameNote(p)
	}))

	s.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return nil, err
		}
		return nil, a.DeleteNote(id)
	}))

	s.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move a note identified by its current path to a new path."),
		mcp.WithString("old_path", mcp.Required(), mcp.Description("Current vault-relative path")),
		mcp.WithString("new_path", mcp.Required(), mcp.Description("New vault-relative path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.MoveNotePayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		return nil, a.MoveNote(p)
	}))

	s.AddTool(mcp.NewTool("append_to_note",
		mcp.WithDescription("Append content to the end of a note identified by path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to append")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.AppendToNotePayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		return nil, a.AppendToNote(p)
	}))

	s.AddTool(mcp.NewTool("prepend_to_note",
		mcp.WithDescription("Prepend content to the start of a note identified by path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to prepend")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.AppendToNotePayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		return nil, a.PrependToNote(p)
	}))

	s.AddTool(mcp.NewTool("find_replace_in_note",
		mcp.WithDescription("Replace text within a single note identified by path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
		mcp.WithString("old", mcp.Required(), mcp.Description("Text to find")),
		mcp.WithString("new", mcp.Required(), mcp.Description("Replacement text")),
		mcp.WithBoolean("replace_all", mcp.Description("Replace every occurrence instead of only the first (default false)")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.FindReplaceInNotePayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		return nil, a.FindReplaceInNote(p)
	}))

	s.AddTool(mcp.NewTool("create_folder",
		mcp.WithDescription("Create a folder at path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative folder path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return nil, err
		}
		return nil, a.CreateFolder(path)
	}))

	s.AddTool(mcp.NewTool("delete_folder",
		mcp.WithDescription("Delete a folder and cascade-delete everything under it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative folder path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return nil, err
		}
		return nil, a.DeleteFolder(path)
	}))

	s.AddTool(mcp.NewTool("move_folder",
		mcp.WithDescription("Move a folder and cascade-update every note and subfolder beneath it."),
		mcp.WithString("old_path", mcp.Required(), mcp.Description("Current vault-relative folder path")),
		mcp.WithString("new_path", mcp.Required(), mcp.Description("New vault-relative folder path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		var p store.MoveFolderPayload
		if err := bindArgs(req, &p); err != nil {
			return nil, err
		}
		return nil, a.MoveFolder(p)
	}))

	s.AddTool(mcp.NewTool("move_notes_to_folder",
		mcp.WithDescription("Move an explicit list of notes into a destination folder, flattening each to destination_folder plus its own filename."),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("Vault-relative paths of the notes to move"), mcp.WithStringItems()),
		mcp.WithString("destination_folder", mcp.Required(), mcp.Description("Destination folder path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return moveNotesToFolder(a, req)
	}))

	s.AddTool(mcp.NewTool("regex_replace",
		mcp.WithDescription("Find-and-replace a regular expression within a single note identified by path. Short-circuits without writing anything if the pattern doesn't match."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Regular expression to match")),
		mcp.WithString("replacement", mcp.Required(), mcp.Description("Replacement text, may reference capture groups")),
		mcp.WithBoolean("case_insensitive", mcp.Description("Match case-insensitively (default false)")),
		mcp.WithBoolean("multiline", mcp.Description("^ and $ match at line boundaries, not just string boundaries (default false)")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return regexReplace(a, req)
	}))

	s.AddTool(mcp.NewTool("clear_all",
		mcp.WithDescription("Delete every note and folder. Destructive, intended for tests and vault resets."),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return nil, a.ClearAll()
	}))

	s.AddTool(mcp.NewTool("list_recent_notes",
		mcp.WithDescription("List the most recently changed notes, newest first. Read-only, does not go through the replicated log."),
		mcp.WithNumber("limit", mcp.Description("Maximum notes to return (default 10)")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		limit := int(req.GetFloat("limit", 10))
		return a.GetRecentNotes(limit)
	}))

	s.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Fetch a single note by id or by path."),
		mcp.WithString("id", mcp.Description("Note id")),
		mcp.WithString("path", mcp.Description("Vault-relative path")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		if id := req.GetString("id", ""); id != "" {
			return a.GetNote(id)
		}
		if path := req.GetString("path", ""); path != "" {
			return a.GetNoteByPath(path)
		}
		return nil, errors.New("facade: get_note requires id or path")
	}))

	s.AddTool(mcp.NewTool("list_notes_in_folder",
		mcp.WithDescription("List the notes directly in a folder (exact match on folder_path, not its subfolders). Pass an empty folder_path for vault-root notes."),
		mcp.WithString("folder_path", mcp.Description("Folder path; empty or omitted means vault root")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		folder := req.GetString("folder_path", "")
		if folder != "" {
			folder = strings.TrimSuffix(folder, "/") + "/"
		}
		return a.ListNotesByFolderPath(folder)
	}))

	s.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note content and paths for a literal substring, case-insensitive."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to search for")),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}
		return searchNotes(a, query)
	}))

	s.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List every folder in the vault."),
	), withErr(func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return a.ListFolders()
	}))
}

// regexReplace applies a single regular expression substitution across one
// note's content and writes it back via update_note_content, short-circuiting
// without writing anything when the pattern doesn't match.
func regexReplace(a Adapter, req mcp.CallToolRequest) (any, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return nil, err
	}
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return nil, err
	}
	replacement, err := req.RequireString("replacement")
	if err != nil {
		return nil, err
	}
	caseInsensitive := req.GetBool("case_insensitive", false)
	multiline := req.GetBool("multiline", false)

	note, err := a.GetNoteByPath(path)
	if err != nil {
		return nil, fmt.Errorf("facade: regex_replace: note not found: %s", path)
	}

	flags := ""
	if caseInsensitive {
		flags += "i"
	}
	if multiline {
		flags += "m"
	}
	exprSrc := pattern
	if flags != "" {
		exprSrc = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(exprSrc)
	if err != nil {
		return nil, fmt.Errorf("facade: regex_replace: invalid pattern: %w", err)
	}

	newContent := re.ReplaceAllString(note.Content, replacement)
	if newContent == note.Content {
		return map[string]any{"matches": 0, "message": "no matches found, note unchanged"}, nil
	}
	matches := len(re.FindAllString(note.Content, -1))

	if err := a.UpdateNoteContent(store.UpdateNoteContentPayload{
		ID:           note.ID,
		Content:      newContent,
		Frontmatter:  note.Frontmatter,
		Size:         uint64(len(newContent)),
		ModifiedTime: uint64(time.Now().UnixMilli()),
	}); err != nil {
		return nil, err
	}
	return map[string]any{"matches": matches, "path": path}, nil
}

// moveNotesToFolder moves an explicit list of notes into destinationFolder,
// flattening each to destinationFolder plus its own filename regardless of
// the subfolder it currently lives under.
func moveNotesToFolder(a Adapter, req mcp.CallToolRequest) (any, error) {
	var p struct {
		Paths             []string `json:"paths"`
		DestinationFolder string   `json:"destination_folder"`
	}
	if err := bindArgs(req, &p); err != nil {
		return nil, err
	}
	if len(p.Paths) == 0 {
		return nil, errors.New("facade: move_notes_to_folder requires at least one path")
	}

	dest := strings.TrimSuffix(p.DestinationFolder, "/") + "/"

	var moved []string
	var failed []string
	for _, oldPath := range p.Paths {
		filename := oldPath
		if idx := strings.LastIndex(oldPath, "/"); idx >= 0 {
			filename = oldPath[idx+1:]
		}
		newPath := dest + filename
		if err := a.MoveNote(store.MoveNotePayload{OldPath: oldPath, NewPath: newPath}); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", oldPath, err))
			continue
		}
		moved = append(moved, fmt.Sprintf("%s -> %s", oldPath, newPath))
	}

	result := map[string]any{"moved": moved, "destination": dest}
	if len(failed) > 0 {
		result["errors"] = failed
	}
	return result, nil
}

func searchNotes(a Adapter, query string) (any, error) {
	notes, err := a.ListNotes()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var hits []store.NoteRow
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Content), q) || strings.Contains(strings.ToLower(n.Path), q) {
			hits = append(hits, n)
		}
	}
	return hits, nil
}

// bindArgs decodes a tool call's raw arguments into dst via JSON, letting
// every reducer payload struct double as its own tool schema binding.
func bindArgs(req mcp.CallToolRequest, dst any) error {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return fmt.Errorf("facade: marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("facade: decode arguments: %w", err)
	}
	return nil
}

// withErr adapts a (any, error)-returning handler into the mcp.ToolHandlerFunc
// shape, marshaling a non-nil result into the tool's text content and
// returning a handler or marshal error as the handler's error, which the
// MCP server reports to the caller as a JSON-RPC error object with code
// -32603 (internal error).
func withErr(fn func(ctx context.Context, req mcp.CallToolRequest) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return mcp.NewToolResultText("ok"), nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

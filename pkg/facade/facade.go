// Package facade exposes the sync daemon's reducers and read projections
// as MCP tools over a streamable-HTTP transport, giving external agents
// the same JSON-RPC surface (initialize / tools/list / tools/call) that a
// SpacetimeDB client would get from calling reducers directly.
package facade

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/spacenotes/spacenotes-sync/pkg/store"
)

// Adapter is the subset of *store.Adapter the façade's tools call.
type Adapter interface {
	CreateNote(p store.CreateNotePayload) error
	UpdateNoteContent(p store.UpdateNoteContentPayload) error
	RenameNote(p store.RenameNotePayload) error
	DeleteNote(id string) error
	MoveNote(p store.MoveNotePayload) error
	AppendToNote(p store.AppendToNotePayload) error
	PrependToNote(p store.AppendToNotePayload) error
	FindReplaceInNote(p store.FindReplaceInNotePayload) error
	CreateFolder(path string) error
	DeleteFolder(path string) error
	MoveFolder(p store.MoveFolderPayload) error
	ClearAll() error

	GetRecentNotes(limit int) ([]store.NoteRow, error)
	GetNote(id string) (store.NoteRow, error)
	GetNoteByPath(path string) (store.NoteRow, error)
	ListNotes() ([]store.NoteRow, error)
	ListNotesByFolderPath(path string) ([]store.NoteRow, error)
	GetFolder(path string) (store.FolderRow, error)
	ListFolders() ([]store.FolderRow, error)
}

// Facade wraps the MCP server exposing the tool surface.
type Facade struct {
	mcp  *server.MCPServer
	http *server.StreamableHTTPServer
	addr string
}

// New builds a Facade bound to adapter. Call Serve to start listening.
func New(adapter Adapter, addr string) *Facade {
	s := server.NewMCPServer(
		"spacenotes-sync",
		"v1",
		server.WithToolCapabilities(false),
	)
	registerTools(s, adapter)

	httpServer := server.NewStreamableHTTPServer(s)

	return &Facade{mcp: s, http: httpServer, addr: addr}
}

// Serve blocks, running the streamable-HTTP MCP server until ctx is
// cancelled.
func (f *Facade) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", f.addr).Msg("facade: starting MCP server")
		errCh <- f.http.Start(f.addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("facade: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return f.http.Shutdown(context.Background())
	}
}

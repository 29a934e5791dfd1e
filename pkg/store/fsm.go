package store

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// Command is a single state-change operation carried through the Raft log,
// the same envelope shape the teacher's cluster FSM uses: an opcode plus
// the opcode-specific payload as raw JSON.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	OpCreateNote          = "create_note"
	OpUpdateNoteContent   = "update_note_content"
	OpRenameNote          = "rename_note"
	OpDeleteNote          = "delete_note"
	OpMoveNote            = "move_note"
	OpUpsertNote          = "upsert_note"
	OpAppendToNote        = "append_to_note"
	OpPrependToNote       = "prepend_to_note"
	OpFindReplaceInNote   = "find_replace_in_note"
	OpCreateFolder        = "create_folder"
	OpDeleteFolder        = "delete_folder"
	OpMoveFolder          = "move_folder"
	OpUpsertFolder        = "upsert_folder"
	OpClearAll            = "clear_all"
)

// FSM applies committed Raft log entries to a RowStore and republishes
// every successful mutation as a RowChange on the broker, the mechanism
// the rest of the process relies on to learn about remote-originated
// (and its own) row mutations exactly once they're durable. Every
// committed entry carries a deterministic transaction timestamp derived
// from the Raft log entry itself, so every replica stamps db_updated_at
// identically without needing wall-clock agreement.
type FSM struct {
	mu     sync.Mutex
	rows   RowStore
	broker *Broker
}

// NewFSM returns an FSM backed by rows, publishing row changes to broker.
func NewFSM(rows RowStore, broker *Broker) *FSM {
	return &FSM{rows: rows, broker: broker}
}

// Apply is invoked by Raft once a log entry is committed. Its return value
// becomes the ApplyFuture's Response(). Illegal preconditions inside a
// reducer are not reported here as errors: the reducer itself logs and
// returns a nil change, and Apply returns nil, matching the "idempotent
// noop" contract every reducer is specified to have. A non-nil error
// return means the command or its payload could not be decoded, the op is
// unknown, or the row store itself failed.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("fsm: unmarshal command: %w", err)
	}

	now := uint64(entry.AppendedAt.UnixMilli())

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpCreateNote:
		var p CreateNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceCreateNote(f.rows, now, p)
		})
	case OpUpdateNoteContent:
		var p UpdateNoteContentPayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceUpdateNoteContent(f.rows, now, p)
		})
	case OpRenameNote:
		var p RenameNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceRenameNote(f.rows, now, p)
		})
	case OpDeleteNote:
		var p DeleteNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceDeleteNote(f.rows, p)
		})
	case OpMoveNote:
		var p MoveNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceMoveNote(f.rows, now, p)
		})
	case OpUpsertNote:
		var p UpsertNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceUpsertNote(f.rows, now, p)
		})
	case OpAppendToNote:
		var p AppendToNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceAppendToNote(f.rows, now, p, false)
		})
	case OpPrependToNote:
		var p AppendToNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceAppendToNote(f.rows, now, p, true)
		})
	case OpFindReplaceInNote:
		var p FindReplaceInNotePayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceFindReplaceInNote(f.rows, now, p)
		})
	case OpCreateFolder:
		var p CreateFolderPayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceCreateFolder(f.rows, p)
		})
	case OpUpsertFolder:
		var p UpsertFolderPayload
		return f.dispatch1(json.Unmarshal(cmd.Data, &p), func() (*RowChange, error) {
			return reduceUpsertFolder(f.rows, p)
		})
	case OpDeleteFolder:
		var p DeleteFolderPayload
		return f.dispatchN(json.Unmarshal(cmd.Data, &p), func() ([]RowChange, error) {
			return reduceDeleteFolder(f.rows, p)
		})
	case OpMoveFolder:
		var p MoveFolderPayload
		return f.dispatchN(json.Unmarshal(cmd.Data, &p), func() ([]RowChange, error) {
			return reduceMoveFolder(f.rows, now, p)
		})
	case OpClearAll:
		notes, err := f.rows.ListNotes()
		if err != nil {
			return err
		}
		folders, err := f.rows.ListFolders()
		if err != nil {
			return err
		}
		if err := f.rows.ClearAll(); err != nil {
			return err
		}
		for i := range notes {
			f.publish(RowChange{Table: "note", Kind: RowDeleted, Note: &notes[i]})
		}
		for i := range folders {
			f.publish(RowChange{Table: "folder", Kind: RowDeleted, Folder: &folders[i]})
		}
		return nil
	case OpClearAllBarrier:
		return nil
	default:
		return fmt.Errorf("fsm: unknown command %q", cmd.Op)
	}
}

// dispatch1 runs a reducer that yields at most one RowChange, publishing it
// if present.
func (f *FSM) dispatch1(unmarshalErr error, run func() (*RowChange, error)) interface{} {
	if unmarshalErr != nil {
		return fmt.Errorf("fsm: decode payload: %w", unmarshalErr)
	}
	change, err := run()
	if err != nil {
		return err
	}
	if change != nil {
		f.publish(*change)
	}
	return nil
}

// dispatchN runs a reducer that yields a cascade of RowChanges (folder
// delete/move), publishing each in order.
func (f *FSM) dispatchN(unmarshalErr error, run func() ([]RowChange, error)) interface{} {
	if unmarshalErr != nil {
		return fmt.Errorf("fsm: decode payload: %w", unmarshalErr)
	}
	changes, err := run()
	if err != nil {
		return err
	}
	for _, c := range changes {
		f.publish(c)
	}
	return nil
}

func (f *FSM) publish(change RowChange) {
	if f.broker != nil {
		f.broker.Publish(change)
	}
}

// snapshot is the point-in-time dump persisted by Raft's log compaction.
type snapshot struct {
	Notes   []NoteRow   `json:"notes"`
	Folders []FolderRow `json:"folders"`
}

// Snapshot captures the current row store contents.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	notes, err := f.rows.ListNotes()
	if err != nil {
		return nil, fmt.Errorf("fsm: snapshot notes: %w", err)
	}
	folders, err := f.rows.ListFolders()
	if err != nil {
		return nil, fmt.Errorf("fsm: snapshot folders: %w", err)
	}
	return &fsmSnapshot{snapshot{Notes: notes, Folders: folders}}, nil
}

// Restore replaces the row store's contents with a previously captured
// snapshot, used when this node restarts from its Raft data directory.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("fsm: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.rows.ClearAll(); err != nil {
		return fmt.Errorf("fsm: clear before restore: %w", err)
	}
	for _, n := range snap.Notes {
		if err := f.rows.CreateNote(n); err != nil {
			return fmt.Errorf("fsm: restore note %s: %w", n.ID, err)
		}
	}
	for _, fo := range snap.Folders {
		if err := f.rows.CreateFolder(fo); err != nil {
			return fmt.Errorf("fsm: restore folder %s: %w", fo.Path, err)
		}
	}
	return nil
}

type fsmSnapshot struct {
	data snapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

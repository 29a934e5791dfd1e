package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spacenotes/spacenotes-sync/pkg/metrics"
)

func marshalPayload(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("adapter: marshal payload: %w", err)
	}
	return data, nil
}

// RowCallbacks are the per-table hooks the adapter fires for every applied
// transaction, including echoes of this process's own writes — echo
// suppression is the tracker's job, not the adapter's.
type RowCallbacks struct {
	OnNoteInsert   func(n NoteRow)
	OnNoteUpdate   func(old, new NoteRow)
	OnNoteDelete   func(n NoteRow)
	OnFolderInsert func(f FolderRow)
	OnFolderUpdate func(old, new FolderRow)
	OnFolderDelete func(f FolderRow)
}

// Adapter is the typed façade over Runtime that the rest of the process
// talks to: reducer calls are fire-and-forget from the caller's point of
// view (they block only until Raft durably commits them, never until a
// subscriber has processed the resulting row change), and reads query the
// sqlite row store directly.
type Adapter struct {
	rt        *Runtime
	callbacks RowCallbacks
	timeout   time.Duration

	sub    Subscriber
	stopCh chan struct{}
	doneCh chan struct{}

	syncedMu sync.Mutex
	synced   bool
	syncedCh chan struct{}
}

// NewAdapter wires an Adapter over rt, registering callbacks against the
// runtime's broker and starting the dispatch loop. Call Close to release
// the subscription.
func NewAdapter(rt *Runtime, callbacks RowCallbacks) *Adapter {
	a := &Adapter{
		rt:        rt,
		callbacks: callbacks,
		timeout:   5 * time.Second,
		sub:       rt.Broker().Subscribe(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		syncedCh:  make(chan struct{}),
	}
	go a.dispatch()
	return a
}

func (a *Adapter) dispatch() {
	defer close(a.doneCh)
	for {
		select {
		case change, ok := <-a.sub:
			if !ok {
				return
			}
			a.deliver(change)
		case <-a.stopCh:
			return
		}
	}
}

func (a *Adapter) deliver(change RowChange) {
	switch change.Table {
	case "note":
		switch change.Kind {
		case RowInserted:
			if a.callbacks.OnNoteInsert != nil && change.Note != nil {
				a.callbacks.OnNoteInsert(*change.Note)
			}
		case RowUpdated:
			if a.callbacks.OnNoteUpdate != nil && change.Note != nil {
				var old NoteRow
				if change.Old != nil {
					old = *change.Old
				}
				a.callbacks.OnNoteUpdate(old, *change.Note)
			}
		case RowDeleted:
			if a.callbacks.OnNoteDelete != nil && change.Note != nil {
				a.callbacks.OnNoteDelete(*change.Note)
			}
		}
	case "folder":
		switch change.Kind {
		case RowInserted:
			if a.callbacks.OnFolderInsert != nil && change.Folder != nil {
				a.callbacks.OnFolderInsert(*change.Folder)
			}
		case RowUpdated:
			if a.callbacks.OnFolderUpdate != nil && change.Folder != nil {
				var old FolderRow
				if change.OldFolder != nil {
					old = *change.OldFolder
				}
				a.callbacks.OnFolderUpdate(old, *change.Folder)
			}
		case RowDeleted:
			if a.callbacks.OnFolderDelete != nil && change.Folder != nil {
				a.callbacks.OnFolderDelete(*change.Folder)
			}
		}
	}
}

// WaitForSync blocks until the runtime's barrier commits, proving every
// previously submitted mutation has been applied to the row store, or ctx's
// deadline passes, or 30 seconds elapse. Row changes already published to
// the broker may still be waiting in the dispatch loop when it returns.
func (a *Adapter) WaitForSync(ctx context.Context) error {
	const defaultTimeout = 30 * time.Second
	deadline := time.Now().Add(defaultTimeout)

	timeout := defaultTimeout
	if d, ok := ctx.Deadline(); ok && time.Until(d) < timeout {
		timeout = time.Until(d)
	}
	if timeout <= 0 {
		return fmt.Errorf("adapter: wait_for_sync: %w", context.DeadlineExceeded)
	}
	if err := a.rt.WaitForSync(timeout); err != nil {
		return fmt.Errorf("adapter: wait_for_sync: %w", err)
	}

	a.syncedMu.Lock()
	if !a.synced {
		a.synced = true
		close(a.syncedCh)
	}
	a.syncedMu.Unlock()

	select {
	case <-a.syncedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Until(deadline)):
		return fmt.Errorf("adapter: wait_for_sync timed out after %s", defaultTimeout)
	}
}

// Close releases the broker subscription and stops the dispatch loop.
func (a *Adapter) Close() {
	close(a.stopCh)
	<-a.doneCh
	a.rt.Broker().Unsubscribe(a.sub)
}

// The reducer calls below are typed wrappers over Runtime.Apply. Every one
// logs and returns the store error verbatim on infra failure; illegal
// preconditions are not reported as errors here since the reducer itself
// already resolved them into a logged noop.

func (a *Adapter) apply(op string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	timer := metrics.NewTimer()
	err = a.rt.Apply(Command{Op: op, Data: data}, a.timeout)
	timer.ObserveDuration(metrics.RaftApplyDuration, op)
	if err != nil {
		metrics.ReducerErrorsTotal.WithLabelValues(op).Inc()
		log.Error().Err(err).Str("op", op).Msg("adapter: reducer call failed")
		return err
	}
	return nil
}

func (a *Adapter) CreateNote(p CreateNotePayload) error { return a.apply(OpCreateNote, p) }

func (a *Adapter) UpdateNoteContent(p UpdateNoteContentPayload) error {
	return a.apply(OpUpdateNoteContent, p)
}

func (a *Adapter) RenameNote(p RenameNotePayload) error { return a.apply(OpRenameNote, p) }

func (a *Adapter) DeleteNote(id string) error {
	return a.apply(OpDeleteNote, DeleteNotePayload{ID: id})
}

func (a *Adapter) MoveNote(p MoveNotePayload) error { return a.apply(OpMoveNote, p) }

func (a *Adapter) UpsertNote(n NoteRow) error { return a.apply(OpUpsertNote, n) }

func (a *Adapter) AppendToNote(p AppendToNotePayload) error { return a.apply(OpAppendToNote, p) }

func (a *Adapter) PrependToNote(p AppendToNotePayload) error { return a.apply(OpPrependToNote, p) }

func (a *Adapter) FindReplaceInNote(p FindReplaceInNotePayload) error {
	return a.apply(OpFindReplaceInNote, p)
}

func (a *Adapter) CreateFolder(path string) error {
	return a.apply(OpCreateFolder, CreateFolderPayload{Path: path})
}

func (a *Adapter) DeleteFolder(path string) error {
	return a.apply(OpDeleteFolder, DeleteFolderPayload{Path: path})
}

func (a *Adapter) MoveFolder(p MoveFolderPayload) error { return a.apply(OpMoveFolder, p) }

func (a *Adapter) UpsertFolder(path string) error {
	return a.apply(OpUpsertFolder, UpsertFolderPayload{Path: path})
}

func (a *Adapter) ClearAll() error { return a.apply(OpClearAll, struct{}{}) }

// GetRecentNotes is a read-only projection and, per spec, never goes
// through Raft: it reads straight off the row store.
func (a *Adapter) GetRecentNotes(limit int) ([]NoteRow, error) {
	return a.rt.Rows().ListRecentNotes(limit)
}

func (a *Adapter) GetNote(id string) (NoteRow, error)         { return a.rt.Rows().GetNote(id) }
func (a *Adapter) GetNoteByPath(path string) (NoteRow, error) { return a.rt.Rows().GetNoteByPath(path) }
func (a *Adapter) ListNotes() ([]NoteRow, error)               { return a.rt.Rows().ListNotes() }
func (a *Adapter) ListNotesByFolderPrefix(prefix string) ([]NoteRow, error) {
	return a.rt.Rows().ListNotesByFolderPrefix(prefix)
}
func (a *Adapter) ListNotesByFolderPath(path string) ([]NoteRow, error) {
	return a.rt.Rows().ListNotesByFolderPath(path)
}
func (a *Adapter) GetFolder(path string) (FolderRow, error) { return a.rt.Rows().GetFolder(path) }
func (a *Adapter) ListFolders() ([]FolderRow, error)         { return a.rt.Rows().ListFolders() }

package store

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logEntry(t *testing.T, op string, payload any) *raft.Log {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	cmdData, err := json.Marshal(Command{Op: op, Data: data})
	require.NoError(t, err)
	return &raft.Log{Data: cmdData, AppendedAt: time.UnixMilli(42)}
}

func TestFSMApplyCreateNotePublishesChange(t *testing.T) {
	s := newTestStore(t)
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	fsm := NewFSM(s, broker)
	resp := fsm.Apply(logEntry(t, OpCreateNote, CreateNotePayload{ID: "n1", Path: "a.md", Content: "hi"}))
	assert.Nil(t, resp)

	select {
	case change := <-sub:
		assert.Equal(t, RowInserted, change.Kind)
		assert.Equal(t, uint64(42), change.Note.DBUpdatedAt)
	case <-time.After(time.Second):
		t.Fatal("expected a published row change")
	}
}

func TestFSMApplyUnknownOp(t *testing.T) {
	s := newTestStore(t)
	fsm := NewFSM(s, nil)
	resp := fsm.Apply(logEntry(t, "not_a_real_op", struct{}{}))
	err, ok := resp.(error)
	require.True(t, ok)
	assert.Error(t, err)
}

func TestFSMApplyNoopDoesNotPublish(t *testing.T) {
	s := newTestStore(t)
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	fsm := NewFSM(s, broker)
	// Deleting a note that doesn't exist is a reducer-level noop.
	resp := fsm.Apply(logEntry(t, OpDeleteNote, DeleteNotePayload{ID: "ghost"}))
	assert.Nil(t, resp)

	select {
	case change := <-sub:
		t.Fatalf("expected no published change, got %v", change)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	fsm := NewFSM(s, nil)

	fsm.Apply(logEntry(t, OpCreateNote, CreateNotePayload{ID: "n1", Path: "a.md", Content: "hi"}))
	fsm.Apply(logEntry(t, OpCreateFolder, CreateFolderPayload{Path: "sub"}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	// Restoring directly from the captured struct avoids needing a real
	// raft.SnapshotSink implementation in this test.
	s2 := newTestStore(t)
	fsm2 := NewFSM(s2, nil)
	data, err := json.Marshal(snap.(*fsmSnapshot).data)
	require.NoError(t, err)
	require.NoError(t, fsm2.Restore(io.NopCloser(bytes.NewReader(data))))

	n, err := s2.GetNote("n1")
	require.NoError(t, err)
	assert.Equal(t, "a.md", n.Path)
	_, err = s2.GetFolder("sub")
	require.NoError(t, err)
}

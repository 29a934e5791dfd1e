package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog/log"
)

// RuntimeConfig configures a single-node replicated table store.
type RuntimeConfig struct {
	NodeID  string
	DataDir string
}

// Runtime bundles a Raft group, its FSM, and the row store it fronts. It
// models the single process that would otherwise be a SpacetimeDB module:
// every mutation goes through Raft's log before landing in sqlite, so a
// crash mid-write can always be replayed from the log on restart.
type Runtime struct {
	raft   *raft.Raft
	fsm    *FSM
	rows   RowStore
	broker *Broker
}

// NewRuntime opens the row store and bootstraps a single-node Raft group
// over it. Data directories and the sqlite file live under cfg.DataDir.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	rows, err := OpenSQLiteStore(filepath.Join(cfg.DataDir, "rows.sqlite"))
	if err != nil {
		return nil, err
	}

	broker := NewBroker()
	broker.Start()

	fsm := NewFSM(rows, broker)

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.Logger = nil

	_, transport := raft.NewInmemTransport(raft.ServerAddress(cfg.NodeID))

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("store: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("store: create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("store: create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("store: create raft node: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("store: bootstrap cluster: %w", err)
	}

	rt := &Runtime{raft: r, fsm: fsm, rows: rows, broker: broker}
	if err := rt.waitForLeader(10 * time.Second); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) waitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if rt.raft.State() == raft.Leader {
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return fmt.Errorf("store: timed out waiting for leader election")
}

// Apply marshals cmd and commits it through Raft, returning whatever the
// FSM's Apply returned once the log entry is durable.
func (rt *Runtime) Apply(cmd Command, timeout time.Duration) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("store: marshal command: %w", err)
	}
	future := rt.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("store: apply command %s: %w", cmd.Op, err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// Rows exposes read access to the row store for the façade's query tools.
func (rt *Runtime) Rows() RowStore { return rt.rows }

// Broker exposes the change feed for the subscription router.
func (rt *Runtime) Broker() *Broker { return rt.broker }

// WaitForSync applies a no-op barrier command and waits for it to commit,
// giving callers a way to know every previously-submitted mutation has
// been durably applied before proceeding (e.g. before a process exits).
func (rt *Runtime) WaitForSync(timeout time.Duration) error {
	return rt.Apply(Command{Op: OpClearAllBarrier}, timeout)
}

// OpClearAllBarrier is a harmless op name reserved for WaitForSync; the FSM
// applies it as a no-op so repeated calls never change state (any other
// unknown op is rejected with an error). It does not collide with
// OpClearAll.
const OpClearAllBarrier = "barrier"

// Close releases the Raft node's storage handles and stops the broker.
func (rt *Runtime) Close() error {
	if err := rt.raft.Shutdown().Error(); err != nil {
		log.Warn().Err(err).Msg("store: raft shutdown returned an error")
	}
	rt.broker.Stop()
	return rt.rows.Close()
}

package raftnode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"printstatus/internal/model"
)

// ErrNotLeader is returned by Node.Apply on a follower.
var ErrNotLeader = errors.New("not the raft leader")

// Peer is another voter in the cluster.
type Peer struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Config holds the configuration for the Raft node.
type Config struct {
	NodeID       string
	DataDir      string
	BindAddress  string
	Bootstrap    bool
	Peers        []Peer
	ApplyTimeout time.Duration
}

// Node replicates JobState replacements through raft. Only the leader
// accepts updates; every member applies them to its own JobStore and
// snapshot file.
type Node struct {
	raft    *raft.Raft
	bolt    *raftboltdb.BoltStore
	timeout time.Duration
	logger  hclog.Logger
}

var _ Applier = (*Node)(nil)

// NewNode initializes a raft node with BoltDB log storage, a file snapshot
// store and a TCP transport.
func NewNode(cfg Config, fsm *JobStore, logger hclog.Logger) (*Node, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	boltDB, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("create bolt store: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(cfg.DataDir, 2, logger.Named("snapshots"))
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	transport, err := raft.NewTCPTransportWithLogger(cfg.BindAddress, nil, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("create transport: %w", err)
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(cfg.NodeID)
	conf.Logger = logger

	n, err := newNode(cfg, conf, fsm, boltDB, boltDB, snapshots, transport, logger)
	if err != nil {
		transport.Close()
		boltDB.Close()
		return nil, err
	}
	n.bolt = boltDB
	return n, nil
}

func newNode(cfg Config, conf *raft.Config, fsm *JobStore, logs raft.LogStore, stable raft.StableStore,
	snaps raft.SnapshotStore, trans raft.Transport, logger hclog.Logger) (*Node, error) {
	r, err := raft.NewRaft(conf, fsm, logs, stable, snaps, trans)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	if cfg.Bootstrap {
		servers := []raft.Server{{
			ID:      conf.LocalID,
			Address: trans.LocalAddr(),
		}}
		for _, p := range cfg.Peers {
			servers = append(servers, raft.Server{
				ID:      raft.ServerID(p.ID),
				Address: raft.ServerAddress(p.Address),
			})
		}
		err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error()
		if err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			r.Shutdown()
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
		logger.Info("bootstrapped cluster", "servers", len(servers))
	}

	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Node{raft: r, timeout: timeout, logger: logger}, nil
}

// Ready returns ErrNotLeader unless this node currently leads.
func (n *Node) Ready() error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	return nil
}

// Apply replicates state. It returns ErrNotLeader on a follower, and a
// *PersistError when the leader's local snapshot write failed.
func (n *Node) Apply(ctx context.Context, state model.JobState) error {
	if err := n.Ready(); err != nil {
		return err
	}
	data, err := encodeCommand(state)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	timeout := n.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}

	f := n.raft.Apply(data, timeout)
	if err := f.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return ErrNotLeader
		}
		return fmt.Errorf("raft apply: %w", err)
	}
	if err, ok := f.Response().(error); ok && err != nil {
		return err
	}
	return nil
}

// Role returns the node's raft state, e.g. "Leader" or "Follower".
func (n *Node) Role() string {
	return n.raft.State().String()
}

// Leader returns the current leader's address, or "" if unknown.
func (n *Node) Leader() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// WaitForLeader blocks until a leader is known or ctx is done.
func (n *Node) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n.Leader() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops raft and closes the log store.
func (n *Node) Shutdown() error {
	err := n.raft.Shutdown().Error()
	if n.bolt != nil {
		if cerr := n.bolt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

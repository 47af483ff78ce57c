package raftnode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"

	"printstatus/internal/model"
)

// Persister writes the durable copy of the state.
type Persister interface {
	Save(model.JobState) error
}

// PersistError means the in-memory state was replaced but the durable
// write failed. Serving continues from memory.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist state: %v", e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// JobStore holds the single current JobState. It is also the raft FSM
// when the service runs clustered.
type JobStore struct {
	mu      sync.RWMutex
	current model.JobState
	persist Persister
	logger  hclog.Logger
}

var _ raft.FSM = (*JobStore)(nil)

// NewJobStore returns a store seeded with initial. persist may be nil.
func NewJobStore(initial model.JobState, persist Persister, logger hclog.Logger) *JobStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &JobStore{current: initial.Clone(), persist: persist, logger: logger}
}

// Current returns a copy of the current state.
func (s *JobStore) Current() model.JobState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Replace swaps in state and writes the snapshot while holding the lock,
// so disk order always matches memory order. A failed write leaves the
// new state in memory and returns a *PersistError.
func (s *JobStore) Replace(state model.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = state.Clone()
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(s.current); err != nil {
		return &PersistError{Err: err}
	}
	return nil
}

// ====== RAFT FSM ======

const opReplaceState = "replace_state"

// command is the replicated log entry.
type command struct {
	Op    string         `json:"op"`
	State model.JobState `json:"state"`
}

func encodeCommand(state model.JobState) ([]byte, error) {
	return json.Marshal(command{Op: opReplaceState, State: state})
}

// Apply applies a committed log entry. The returned value is the
// ApplyFuture response: nil or an error.
func (s *JobStore) Apply(l *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Op {
	case opReplaceState:
		if err := s.Replace(cmd.State); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}

// Snapshot captures the current state for raft log compaction.
func (s *JobStore) Snapshot() (raft.FSMSnapshot, error) {
	return &jobSnapshot{state: s.Current()}, nil
}

// Restore replaces the state from a raft snapshot.
func (s *JobStore) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()
	var state model.JobState
	if err := json.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode raft snapshot: %w", err)
	}
	if err := s.Replace(state); err != nil {
		s.logger.Warn("restored state not persisted", "error", err)
	}
	return nil
}

type jobSnapshot struct {
	state model.JobState
}

func (s *jobSnapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s.state)
	if err != nil {
		sink.Cancel()
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *jobSnapshot) Release() {}

// ====== APPLIERS ======

// Applier commits a derived state. Ready returns ErrNotLeader when Apply
// would be refused, so callers can reject before touching anything.
type Applier interface {
	Ready() error
	Apply(ctx context.Context, state model.JobState) error
}

// Local applies states straight to a JobStore.
type Local struct {
	Store *JobStore
}

var _ Applier = Local{}

func (Local) Ready() error { return nil }

func (l Local) Apply(_ context.Context, state model.JobState) error {
	return l.Store.Replace(state)
}

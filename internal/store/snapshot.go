package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"printstatus/internal/event"
	"printstatus/internal/model"
)

const (
	SnapshotFile = "job_state.json"
	RawFile      = "last_status.json"
)

// SnapshotStore keeps the durable copy of the current JobState, plus the
// raw payload of the last event that passed JSON parsing.
type SnapshotStore struct {
	dir    string
	logger hclog.Logger
}

// NewSnapshotStore returns a store rooted at dir.
func NewSnapshotStore(dir string, logger hclog.Logger) *SnapshotStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SnapshotStore{dir: dir, logger: logger}
}

func (s *SnapshotStore) SnapshotPath() string { return filepath.Join(s.dir, SnapshotFile) }
func (s *SnapshotStore) RawPath() string      { return filepath.Join(s.dir, RawFile) }

// Load returns the persisted state. It never fails: a missing or corrupt
// snapshot falls back to re-deriving the last raw payload, then to the
// all-null state.
func (s *SnapshotStore) Load() model.JobState {
	state, err := s.readSnapshot()
	if err == nil {
		s.logger.Info("loaded snapshot", "path", s.SnapshotPath())
		return state
	}
	s.logger.Warn("can't read snapshot", "path", s.SnapshotPath(), "error", err)

	state, err = s.rederive()
	if err == nil {
		s.logger.Info("rebuilt state from raw backup", "path", s.RawPath())
		return state
	}
	s.logger.Warn("can't rebuild state from raw backup, starting empty", "path", s.RawPath(), "error", err)
	return model.JobState{}
}

func (s *SnapshotStore) readSnapshot() (model.JobState, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if err != nil {
		return model.JobState{}, err
	}
	var state model.JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.JobState{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}

func (s *SnapshotStore) rederive() (model.JobState, error) {
	raw, err := s.LoadRaw()
	if err != nil {
		return model.JobState{}, err
	}
	p, err := event.Decode(raw)
	if err != nil {
		return model.JobState{}, err
	}
	return event.Derive(p)
}

// Save atomically replaces the snapshot with state.
func (s *SnapshotStore) Save(state model.JobState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(s.SnapshotPath(), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// SaveRaw atomically replaces the raw payload backup.
func (s *SnapshotStore) SaveRaw(raw []byte) error {
	if err := writeFileAtomic(s.RawPath(), raw, 0o644); err != nil {
		return fmt.Errorf("write raw backup: %w", err)
	}
	return nil
}

// LoadRaw returns the last raw payload backup.
func (s *SnapshotStore) LoadRaw() ([]byte, error) {
	return os.ReadFile(s.RawPath())
}

// RestoreRaw puts back a backup previously returned by LoadRaw. A nil prev
// means there was no backup, so the file is removed.
func (s *SnapshotStore) RestoreRaw(prev []byte) error {
	if prev != nil {
		return s.SaveRaw(prev)
	}
	if err := os.Remove(s.RawPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove raw backup: %w", err)
	}
	return nil
}

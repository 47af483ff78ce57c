package httpserver

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"printstatus/internal/event"
	"printstatus/internal/model"
	"printstatus/internal/raftnode"
	"printstatus/internal/telemetry"
)

// EventAppender records raw events for diagnostics.
type EventAppender interface {
	Append(raw []byte) error
}

// RawSaver keeps a backup of the last parsed payload. RestoreRaw takes a
// value from LoadRaw, nil meaning no backup existed.
type RawSaver interface {
	SaveRaw(raw []byte) error
	LoadRaw() ([]byte, error)
	RestoreRaw(prev []byte) error
}

// Ingester runs one inbound event through log, parse, backup, derive and
// apply. It is shared by the HTTP handler and the MQTT source.
type Ingester struct {
	events  EventAppender
	raw     RawSaver
	applier raftnode.Applier
	logger  hclog.Logger
	metrics *telemetry.Metrics

	// mu orders whole events, so the raw backup and the snapshot on disk
	// always come from the same event.
	mu sync.Mutex
}

// NewIngester wires the pipeline. events and raw may be nil.
func NewIngester(events EventAppender, raw RawSaver, applier raftnode.Applier, logger hclog.Logger, m *telemetry.Metrics) *Ingester {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Ingester{events: events, raw: raw, applier: applier, logger: logger, metrics: m}
}

// Ingest returns an *event.EncodingError, *event.ParseError or
// *event.MalformedEventError for client mistakes, raftnode.ErrNotLeader
// on a follower, and nil once the new state is live. Snapshot write
// failures are logged and counted but do not fail the call. An event the
// applier refuses leaves the raw backup as it was.
func (i *Ingester) Ingest(ctx context.Context, raw []byte) (model.JobState, error) {
	defer i.metrics.MeasureSince(time.Now(), "update", "duration")
	logger := loggerFrom(ctx, i.logger)

	if err := i.applier.Ready(); err != nil {
		i.reject(logger, "not_ready", err)
		return model.JobState{}, err
	}

	if err := event.CheckEncoding(raw); err != nil {
		i.reject(logger, "encoding", err)
		return model.JobState{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.events != nil {
		if err := i.events.Append(raw); err != nil {
			i.metrics.Incr("eventlog", "write_error")
			logger.Warn("event log append failed", "error", err)
		}
	}

	payload, err := event.Parse(raw)
	if err != nil {
		i.reject(logger, "parse", err)
		return model.JobState{}, err
	}

	// Backed up before derivation so a payload the deriver rejects can
	// still be inspected after a restart.
	prev, backedUp := i.backup(logger, raw)

	state, err := event.Derive(payload)
	if err != nil {
		i.reject(logger, "derive", err)
		return model.JobState{}, err
	}

	if err := i.applier.Apply(ctx, state); err != nil {
		var pe *raftnode.PersistError
		if !errors.As(err, &pe) {
			if backedUp {
				i.restore(logger, prev)
			}
			i.metrics.IncrWithReason("apply", "update", "rejected")
			return model.JobState{}, err
		}
		i.metrics.Incr("snapshot", "write_error")
		logger.Error("snapshot write failed, serving from memory", "error", err)
	}

	i.metrics.Incr("update", "accepted")
	topic := "None"
	if state.Topic != nil {
		topic = *state.Topic
	}
	logger.Debug("state updated", "topic", topic)
	return state, nil
}

// backup saves raw and returns the backup it replaced. ok is false when
// nothing was written or the previous backup could not be read, in which
// case there is nothing safe to restore.
func (i *Ingester) backup(logger hclog.Logger, raw []byte) (prev []byte, ok bool) {
	if i.raw == nil {
		return nil, false
	}
	prev, err := i.raw.LoadRaw()
	readable := err == nil || errors.Is(err, fs.ErrNotExist)
	if err != nil {
		prev = nil
	}
	if err := i.raw.SaveRaw(raw); err != nil {
		i.metrics.Incr("backup", "write_error")
		logger.Warn("raw backup failed", "error", err)
		return nil, false
	}
	return prev, readable
}

func (i *Ingester) restore(logger hclog.Logger, prev []byte) {
	if err := i.raw.RestoreRaw(prev); err != nil {
		i.metrics.Incr("backup", "write_error")
		logger.Warn("raw backup rollback failed", "error", err)
	}
}

func (i *Ingester) reject(logger hclog.Logger, reason string, err error) {
	i.metrics.IncrWithReason(reason, "update", "rejected")
	logger.Info("rejected event", "reason", reason, "error", err)
}

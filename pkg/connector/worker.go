// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// WorkerState is the state of the bridge worker loop.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerDispatching
	WorkerClosed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerDispatching:
		return "dispatching"
	case WorkerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WorkerStats is a snapshot of the worker counters.
type WorkerStats struct {
	State    string `json:"state"`
	Received int64  `json:"received"`
	Created  int64  `json:"created"`
	Existing int64  `json:"existing"`
	Failed   int64  `json:"failed"`
	Observed int64  `json:"observed"`
}

// Worker is the single consumer of the event queue. It handles one event at
// a time, waiting for provisioning to finish before taking the next event,
// so rooms are provisioned in queue order and never concurrently.
type Worker struct {
	queue       eventReceiver
	provisioner RoomProvisioner
	announcer   Announcer
	log         zerolog.Logger

	state    atomic.Int32
	received atomic.Int64
	created  atomic.Int64
	existing atomic.Int64
	failed   atomic.Int64
	observed atomic.Int64
}

// NewWorker creates a worker. announcer may be nil.
func NewWorker(queue eventReceiver, provisioner RoomProvisioner, announcer Announcer, log zerolog.Logger) *Worker {
	return &Worker{
		queue:       queue,
		provisioner: provisioner,
		announcer:   announcer,
		log:         log.With().Str("component", "worker").Logger(),
	}
}

// Run processes events until the queue reports end-of-stream. ctx is passed
// to provisioning calls; cancelling it does not stop the loop.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Msg("Bridge worker started")
	for {
		w.state.Store(int32(WorkerIdle))
		evt, ok := w.queue.Receive()
		if !ok {
			break
		}
		w.state.Store(int32(WorkerDispatching))
		w.received.Add(1)
		w.log.Debug().Str("event_kind", string(evt.Kind())).Msg("Received channel event")
		w.dispatch(ctx, evt)
	}
	w.state.Store(int32(WorkerClosed))
	w.log.Info().Msg("Event queue closed, bridge worker stopped")
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Stats returns the current counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		State:    w.State().String(),
		Received: w.received.Load(),
		Created:  w.created.Load(),
		Existing: w.existing.Load(),
		Failed:   w.failed.Load(),
		Observed: w.observed.Load(),
	}
}

func (w *Worker) dispatch(ctx context.Context, evt ChannelEvent) {
	switch evt := evt.(type) {
	case ChannelCreated:
		w.handleCreated(ctx, evt)
	case ChannelUpdated:
		// The room stays pinned to the original (server, channel) alias, so
		// a rename has nothing to provision.
		w.observed.Add(1)
		w.log.Info().
			Str("channel_id", evt.After.ID).
			Str("server_id", evt.After.ServerID).
			Str("old_name", evt.Before.Name).
			Str("new_name", evt.After.Name).
			Str("alias", snapshotAliasLocalpart(evt.After)).
			Msg("Channel update observed, bridge room unchanged")
	case ChannelDeleted:
		// Bridge rooms are never torn down automatically.
		w.observed.Add(1)
		w.log.Info().
			Str("channel_id", evt.Channel.ID).
			Str("channel_name", evt.Channel.Name).
			Str("server_id", evt.Channel.ServerID).
			Str("alias", snapshotAliasLocalpart(evt.Channel)).
			Msg("Channel deletion observed, bridge room kept")
	default:
		w.log.Warn().Str("event_kind", string(evt.Kind())).Msg("Unhandled channel event")
	}
}

func (w *Worker) handleCreated(ctx context.Context, evt ChannelCreated) {
	localpart := snapshotAliasLocalpart(evt.Channel)
	log := w.log.With().
		Str("channel_id", evt.Channel.ID).
		Str("channel_name", evt.Channel.Name).
		Str("server_id", evt.Channel.ServerID).
		Str("alias", localpart).
		Logger()

	result, err := w.provisioner.EnsureRoom(ctx, localpart)
	if err != nil {
		w.failed.Add(1)
		log.Error().Err(err).Msg("Failed to provision bridge room")
		return
	}
	if !result.Created {
		w.existing.Add(1)
		log.Info().Str("room_id", string(result.RoomID)).Msg("Bridge room already exists")
		return
	}

	w.created.Add(1)
	log.Info().Str("room_id", string(result.RoomID)).Msg("Bridge room provisioned")
	if w.announcer != nil {
		if err := w.announcer.AnnounceRoom(ctx, evt.Channel, result); err != nil {
			log.Warn().Err(err).Msg("Failed to announce bridge room")
		}
	}
}

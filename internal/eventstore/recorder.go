package eventstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/session"
)

// Recorder writes every published session snapshot to a Store.
type Recorder struct {
	store   *Store
	surface *session.Surface
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stop   func()
}

func NewRecorder(parent context.Context, store *Store, surface *session.Surface, log *slog.Logger) *Recorder {
	ctx, cancel := context.WithCancel(parent)
	return &Recorder{
		store:   store,
		surface: surface,
		log:     log.With(slog.String("component", "history-recorder")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins consuming snapshots.
func (r *Recorder) Start() {
	snaps, stop := r.surface.Watch(64)
	r.stop = stop
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var last uint64
		for snap := range snaps {
			if snap.SessionID == "" || snap.Revision <= last {
				continue
			}
			last = snap.Revision
			r.record(snap)
		}
	}()
}

func (r *Recorder) record(snap session.Snapshot) {
	rec := SessionRecord{
		SessionID: snap.SessionID,
		Kind:      string(snap.Kind),
		Engine:    string(snap.Engine),
		State:     string(snap.State),
		Failure:   snap.Failure,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Result != nil {
		rec.AudioURL = snap.Result.AudioURL
	}
	evt := Event{
		State:     string(snap.State),
		Progress:  snap.Progress,
		Message:   snap.StatusMessage,
		CreatedAt: snap.UpdatedAt,
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.store.Record(ctx, rec, evt); err != nil {
		r.log.Warn("failed to record session snapshot",
			slog.String("session_id", snap.SessionID),
			slog.String("state", string(snap.State)),
			slog.String("error", err.Error()))
	}
}

// Close stops the recorder after the pending snapshots are written.
func (r *Recorder) Close() {
	if r.stop != nil {
		r.stop()
	}
	r.wg.Wait()
	r.cancel()
}

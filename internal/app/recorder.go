package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

// SessionHistoryRecorder hands finalized session summaries to the
// persistence collaborator. Writes run off the session path in their
// own goroutine, bounded by the timeout; failure is logged only.
type SessionHistoryRecorder struct {
	store   core.HistoryStore
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewSessionHistoryRecorder(store core.HistoryStore, timeout time.Duration) *SessionHistoryRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SessionHistoryRecorder{store: store, timeout: timeout}
}

func (r *SessionHistoryRecorder) Record(room domain.Room, endedAt time.Time) {
	if r == nil || r.store == nil {
		return
	}
	rec := domain.SessionRecord{
		RoomID:    room.ID,
		Offerer:   room.Offerer,
		Answerer:  room.Answerer,
		Mode:      room.Mode,
		StartedAt: room.CreatedAt,
		Duration:  endedAt.Sub(room.CreatedAt),
		EndReason: room.EndReason,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.AppendSessionRecord(ctx, rec); err != nil {
			log.Error().Err(err).Str("module", "app.recorder").Str("room", string(rec.RoomID)).Msg("session record write failed")
		}
		// registered users that completed a session become contacts
		if !room.Offerer.Anonymous && !room.Answerer.Anonymous {
			if err := r.store.UpsertFriendship(ctx, room.Offerer.ID, room.Answerer.ID); err != nil {
				log.Error().Err(err).Str("module", "app.recorder").Str("room", string(rec.RoomID)).Msg("friendship write failed")
			}
		}
	}()
}

// Drain blocks until in-flight history writes finish, used at shutdown
// and by tests.
func (r *SessionHistoryRecorder) Drain() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

package app

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/domain"
	"github.com/peervoice/peervoice/internal/metrics"
)

// MatchmakingQueue holds waiting users ordered by enqueue sequence number.
// Pairing is FIFO among compatible entries: the scan walks ascending seq
// and takes the first symmetric filter match, so the earliest compatible
// waiter always wins. All of join/replace/pair is one critical section,
// a waiter can only ever be taken by one concurrent pairing.
type MatchmakingQueue struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries []*domain.QueueEntry
	byUser  map[domain.UserID]*domain.QueueEntry
	seq     uint64
}

func NewMatchmakingQueue(clk clock.Clock) *MatchmakingQueue {
	return &MatchmakingQueue{
		clock:  clk,
		byUser: make(map[domain.UserID]*domain.QueueEntry),
	}
}

// Join inserts (or replaces) the user's entry, then scans for the
// earliest compatible waiter. On a hit both entries leave the queue under
// the lock; the returned partner is the earlier-enqueued side and becomes
// the offerer. Without a hit the entry stays queued.
func (q *MatchmakingQueue) Join(user domain.Identity, mode domain.Mode, filter string) (partner, self *domain.QueueEntry, matched bool) {
	if filter == "" {
		filter = domain.FilterGlobal
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if prior, ok := q.byUser[user.ID]; ok {
		q.removeLocked(prior)
	}

	q.seq++
	entry := &domain.QueueEntry{
		User:       user,
		Mode:       mode,
		Filter:     filter,
		EnqueuedAt: q.clock.Now(),
		Seq:        q.seq,
	}

	for _, cand := range q.entries {
		if cand.User.ID == user.ID {
			continue
		}
		if domain.Compatible(cand, entry) {
			q.removeLocked(cand)
			log.Info().Str("module", "app.queue").Str("user", string(user.ID)).
				Str("partner", string(cand.User.ID)).Msg("paired")
			return cand, entry, true
		}
	}

	q.insertLocked(entry)
	log.Info().Str("module", "app.queue").Str("user", string(user.ID)).Str("filter", filter).Msg("enqueued")
	return nil, entry, false
}

// Leave removes the user's entry if present; no-op otherwise.
func (q *MatchmakingQueue) Leave(user domain.UserID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byUser[user]
	if !ok {
		return false
	}
	q.removeLocked(e)
	log.Info().Str("module", "app.queue").Str("user", string(user)).Msg("left queue")
	return true
}

// Restore re-inserts an entry with its original seq, keeping its place in
// line. Used when room creation for a fresh pair loses a race.
func (q *MatchmakingQueue) Restore(e *domain.QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byUser[e.User.ID]; ok {
		return
	}
	q.insertLocked(e)
}

func (q *MatchmakingQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MatchmakingQueue) insertLocked(e *domain.QueueEntry) {
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].Seq > e.Seq })
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	q.byUser[e.User.ID] = e
	metrics.QueueDepth.Set(float64(len(q.entries)))
}

func (q *MatchmakingQueue) removeLocked(e *domain.QueueEntry) {
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.byUser, e.User.ID)
	metrics.QueueDepth.Set(float64(len(q.entries)))
}

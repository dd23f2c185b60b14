package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
	"github.com/peervoice/peervoice/internal/metrics"
)

var (
	ErrTargetUnavailable = fmt.Errorf("target unavailable: %w", core.ErrStateConflict)
	ErrAlreadyInvited    = fmt.Errorf("invite already pending for this pair: %w", core.ErrStateConflict)
	ErrInviteExpired     = fmt.Errorf("invite expired: %w", core.ErrStateConflict)
)

// pairKey is the unordered (caller, target) pair; at most one outstanding
// invite per pair, in either direction.
type pairKey struct{ a, b domain.UserID }

func makePairKey(x, y domain.UserID) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

type inviteState struct {
	invite  domain.Invite
	gen     uint64
	expired bool
	timer   *clock.Timer
}

// DirectCallDispatcher runs the out-of-queue invitation flow. Expired
// invites stay behind as tombstones for one more TTL so a late respond
// sees Expired rather than an unknown key; the generation counter keeps a
// stale timer from touching a later invite.
type DirectCallDispatcher struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	rooms    *RoomManager
	presence *PresenceTracker
	notify   *Notifier
	byKey    map[domain.InviteKey]*inviteState
	byPair   map[pairKey]domain.InviteKey
	gen      uint64
}

func NewDirectCallDispatcher(clk clock.Clock, ttl time.Duration, rooms *RoomManager, presence *PresenceTracker, notify *Notifier) *DirectCallDispatcher {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DirectCallDispatcher{
		clock:    clk,
		ttl:      ttl,
		rooms:    rooms,
		presence: presence,
		notify:   notify,
		byKey:    make(map[domain.InviteKey]*inviteState),
		byPair:   make(map[pairKey]domain.InviteKey),
	}
}

// Invite rings a specific online user. Fails when the target is in a room
// or offline, when the caller is in a room, or when an invite between the
// two is already pending.
func (d *DirectCallDispatcher) Invite(caller, target domain.Identity, mode domain.Mode) (domain.Invite, error) {
	if caller.ID == target.ID {
		return domain.Invite{}, fmt.Errorf("cannot call yourself: %w", core.ErrStateConflict)
	}
	if d.presence.StatusOf(target.ID) != StatusOnline {
		metrics.Invites.WithLabelValues("unavailable").Inc()
		return domain.Invite{}, ErrTargetUnavailable
	}
	if _, busy := d.rooms.RoomOf(caller.ID); busy {
		return domain.Invite{}, fmt.Errorf("caller already in a room: %w", core.ErrStateConflict)
	}

	d.mu.Lock()
	pk := makePairKey(caller.ID, target.ID)
	if _, dup := d.byPair[pk]; dup {
		d.mu.Unlock()
		return domain.Invite{}, ErrAlreadyInvited
	}
	d.gen++
	gen := d.gen
	now := d.clock.Now()
	inv := domain.Invite{
		Key:       domain.InviteKey(uuid.NewString()),
		Caller:    caller,
		Target:    target,
		Mode:      mode,
		CreatedAt: now,
		ExpiresAt: now.Add(d.ttl),
	}
	st := &inviteState{invite: inv, gen: gen}
	key := inv.Key
	st.timer = d.clock.AfterFunc(d.ttl, func() { d.expire(key, gen) })
	d.byKey[key] = st
	d.byPair[pk] = key
	d.mu.Unlock()

	log.Info().Str("module", "app.directcall").Str("caller", string(caller.ID)).
		Str("target", string(target.ID)).Str("key", string(key)).Msg("invite sent")
	d.notify.ToUser(target.ID, incomingCallEvent{
		Type:      "incoming-call",
		Key:       inv.Key,
		Caller:    caller,
		Mode:      mode,
		ExpiresAt: inv.ExpiresAt.Unix(),
	})
	metrics.Invites.WithLabelValues("sent").Inc()
	return inv, nil
}

// Respond accepts or declines a pending invite. Only the target may
// respond. On accept the room is created exactly like a queue match with
// the caller as offerer; the caller of Respond announces it.
func (d *DirectCallDispatcher) Respond(key domain.InviteKey, responder domain.UserID, accept bool) (*domain.Room, error) {
	d.mu.Lock()
	st, ok := d.byKey[key]
	if !ok {
		d.mu.Unlock()
		return nil, core.ErrNotFound
	}
	inv := st.invite
	pk := makePairKey(inv.Caller.ID, inv.Target.ID)
	if st.expired || d.clock.Now().After(inv.ExpiresAt) {
		// lazy expiry for an invite the sweep has not reached yet
		alreadyNotified := st.expired
		st.timer.Stop()
		delete(d.byKey, key)
		// once the sweep removed the pair index, byPair may already
		// belong to a newer invite between the same two users
		if cur, live := d.byPair[pk]; live && cur == key {
			delete(d.byPair, pk)
		}
		d.mu.Unlock()
		if !alreadyNotified {
			d.notify.ToUser(inv.Caller.ID, callExpiredEvent{Type: "call-expired", Key: key})
			metrics.Invites.WithLabelValues("expired").Inc()
		}
		return nil, ErrInviteExpired
	}
	if inv.Target.ID != responder {
		d.mu.Unlock()
		return nil, fmt.Errorf("only the target may respond: %w", core.ErrStateConflict)
	}
	st.timer.Stop()
	delete(d.byKey, key)
	delete(d.byPair, pk)
	d.mu.Unlock()

	if !accept {
		log.Info().Str("module", "app.directcall").Str("key", string(key)).Msg("invite declined")
		d.notify.ToUser(inv.Caller.ID, callDeclinedEvent{Type: "call-declined", Key: key})
		metrics.Invites.WithLabelValues("declined").Inc()
		return nil, nil
	}

	room, err := d.rooms.Create(inv.Caller, inv.Target, inv.Mode)
	if err != nil {
		d.notify.ToUser(inv.Caller.ID, callDeclinedEvent{Type: "call-declined", Key: key})
		return nil, err
	}
	metrics.Invites.WithLabelValues("accepted").Inc()
	return &room, nil
}

// Cancel withdraws the caller's pending invite towards target.
func (d *DirectCallDispatcher) Cancel(caller, target domain.UserID) error {
	d.mu.Lock()
	pk := makePairKey(caller, target)
	key, ok := d.byPair[pk]
	if !ok {
		d.mu.Unlock()
		return core.ErrNotFound
	}
	st := d.byKey[key]
	if st.invite.Caller.ID != caller {
		d.mu.Unlock()
		return fmt.Errorf("only the caller may cancel: %w", core.ErrStateConflict)
	}
	st.timer.Stop()
	delete(d.byKey, key)
	delete(d.byPair, pk)
	d.mu.Unlock()

	log.Info().Str("module", "app.directcall").Str("key", string(key)).Msg("invite canceled")
	d.notify.ToUser(target, callCanceledEvent{Type: "call-canceled", Key: key})
	metrics.Invites.WithLabelValues("canceled").Inc()
	return nil
}

func (d *DirectCallDispatcher) expire(key domain.InviteKey, gen uint64) {
	d.mu.Lock()
	st, ok := d.byKey[key]
	if !ok || st.gen != gen || st.expired {
		d.mu.Unlock()
		return
	}
	st.expired = true
	delete(d.byPair, makePairKey(st.invite.Caller.ID, st.invite.Target.ID))
	caller := st.invite.Caller.ID
	d.clock.AfterFunc(d.ttl, func() { d.purge(key, gen) })
	d.mu.Unlock()

	log.Info().Str("module", "app.directcall").Str("key", string(key)).Msg("invite expired")
	d.notify.ToUser(caller, callExpiredEvent{Type: "call-expired", Key: key})
	metrics.Invites.WithLabelValues("expired").Inc()
}

func (d *DirectCallDispatcher) purge(key domain.InviteKey, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.byKey[key]; ok && st.gen == gen && st.expired {
		delete(d.byKey, key)
	}
}

func (d *DirectCallDispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byPair)
}

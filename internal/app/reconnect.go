package app

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/domain"
)

type reconnectPending struct {
	user   domain.UserID
	roomID domain.RoomID
	gen    uint64
	timer  *clock.Timer
}

// ReconnectCoordinator gives a dropped connection a grace window to
// re-identify before its room is declared ended. Timers are guarded by a
// generation counter checked under the coordinator lock, so a timer that
// lost the race to a resume (or to a newer grace window) never fires an
// end transition.
type ReconnectCoordinator struct {
	mu      sync.Mutex
	clock   clock.Clock
	grace   time.Duration
	rooms   *RoomManager
	notify  *Notifier
	pending map[domain.UserID]*reconnectPending
	gen     uint64
}

func NewReconnectCoordinator(clk clock.Clock, grace time.Duration, rooms *RoomManager, notify *Notifier) *ReconnectCoordinator {
	if grace <= 0 {
		grace = 12 * time.Second
	}
	return &ReconnectCoordinator{
		clock:   clk,
		grace:   grace,
		rooms:   rooms,
		notify:  notify,
		pending: make(map[domain.UserID]*reconnectPending),
	}
}

// OnConnectionLost arms the grace window for a user with an active room
// and informs the partner. Returns false when there is nothing to resume.
func (c *ReconnectCoordinator) OnConnectionLost(user domain.UserID) bool {
	roomID, ok := c.rooms.RoomOf(user)
	if !ok {
		return false
	}
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return false
	}
	partner, _ := room.PartnerOf(user)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	p := &reconnectPending{user: user, roomID: roomID, gen: gen}
	p.timer = c.clock.AfterFunc(c.grace, func() { c.onTimeout(user, gen) })
	c.pending[user] = p
	c.mu.Unlock()

	log.Info().Str("module", "app.reconnect").Str("user", string(user)).
		Str("room", string(roomID)).Dur("grace", c.grace).Msg("grace window armed")
	c.notify.ToUser(partner.ID, partnerReconnectingEvent{Type: "partner-reconnecting", Room: roomID})
	return true
}

// OnReidentified re-attaches a returning user to their room if the grace
// window is still open. The partner may have ended the room in the gap,
// in which case there is nothing to resume.
func (c *ReconnectCoordinator) OnReidentified(user domain.UserID) (domain.RoomID, bool) {
	c.mu.Lock()
	p, ok := c.pending[user]
	if !ok {
		c.mu.Unlock()
		return "", false
	}
	delete(c.pending, user)
	p.timer.Stop()
	c.mu.Unlock()

	if current, ok := c.rooms.RoomOf(user); !ok || current != p.roomID {
		return "", false
	}
	room, ok := c.rooms.Get(p.roomID)
	if !ok {
		return "", false
	}
	partner, _ := room.PartnerOf(user)
	log.Info().Str("module", "app.reconnect").Str("user", string(user)).
		Str("room", string(p.roomID)).Msg("session resumed")
	c.notify.ToUser(partner.ID, partnerResumedEvent{Type: "partner-resumed", Room: p.roomID})
	return p.roomID, true
}

func (c *ReconnectCoordinator) onTimeout(user domain.UserID, gen uint64) {
	c.mu.Lock()
	p, ok := c.pending[user]
	if !ok || p.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, user)
	c.mu.Unlock()

	room, ok := c.rooms.Get(p.roomID)
	if !ok || room.Ended() {
		return
	}
	partner, ok := room.PartnerOf(user)
	if !ok {
		return
	}
	log.Info().Str("module", "app.reconnect").Str("user", string(user)).
		Str("room", string(p.roomID)).Msg("grace window elapsed")
	_ = c.rooms.End(p.roomID, partner.ID, domain.EndPartnerDisconnect)
}

package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
	"github.com/peervoice/peervoice/internal/metrics"
)

// Relay message kinds accepted between participants.
const (
	KindOffer          = "offer"
	KindAnswer         = "answer"
	KindCandidate      = "candidate"
	KindToggleMute     = "toggle-mute"
	KindSignalStrength = "signal-strength"
)

type roomState struct {
	mu   sync.Mutex
	room *domain.Room
}

// RoomManager owns the active room table and relays signaling between the
// two participants of a room. Lock order is table mutex before per-room
// mutex; side effects (pushes, presence, record) run with no locks held.
type RoomManager struct {
	mu     sync.RWMutex
	clock  clock.Clock
	rooms  map[domain.RoomID]*roomState
	byUser map[domain.UserID]domain.RoomID

	registry *ConnectionRegistry
	presence *PresenceTracker
	notify   *Notifier
	recorder *SessionHistoryRecorder
}

func NewRoomManager(clk clock.Clock, registry *ConnectionRegistry, presence *PresenceTracker, notify *Notifier, recorder *SessionHistoryRecorder) *RoomManager {
	return &RoomManager{
		clock:    clk,
		rooms:    make(map[domain.RoomID]*roomState),
		byUser:   make(map[domain.UserID]domain.RoomID),
		registry: registry,
		presence: presence,
		notify:   notify,
		recorder: recorder,
	}
}

// Create pairs two identities into a fresh pending-signal room. The
// at-most-one-non-ended-room-per-identity invariant is enforced here,
// under the table lock, for both queue matches and direct calls.
func (m *RoomManager) Create(offerer, answerer domain.Identity, mode domain.Mode) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, busy := m.byUser[offerer.ID]; busy {
		return domain.Room{}, fmt.Errorf("offerer already in room %s: %w", cur, core.ErrStateConflict)
	}
	if cur, busy := m.byUser[answerer.ID]; busy {
		return domain.Room{}, fmt.Errorf("answerer already in room %s: %w", cur, core.ErrStateConflict)
	}
	room := &domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Offerer:   offerer,
		Answerer:  answerer,
		Mode:      mode,
		CreatedAt: m.clock.Now(),
		Status:    domain.RoomPendingSignal,
	}
	m.rooms[room.ID] = &roomState{room: room}
	m.byUser[offerer.ID] = room.ID
	m.byUser[answerer.ID] = room.ID
	metrics.ActiveRooms.Inc()
	metrics.MatchesTotal.Inc()
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).
		Str("offerer", string(offerer.ID)).Str("answerer", string(answerer.ID)).Msg("room created")
	return *room, nil
}

func (m *RoomManager) RoomOf(user domain.UserID) (domain.RoomID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[user]
	return id, ok
}

// Get returns a snapshot of the room.
func (m *RoomManager) Get(id domain.RoomID) (domain.Room, bool) {
	m.mu.RLock()
	rs, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return domain.Room{}, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return *rs.room, true
}

func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// relayEnvelope is what the partner receives; the payload travels
// verbatim.
type relayEnvelope struct {
	Type    string          `json:"type"`
	Room    domain.RoomID   `json:"room"`
	From    domain.UserID   `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Relay forwards a signaling message to the sender's partner. The sender
// must be a participant and the room must not have ended. A partner with
// no active connection drops the message: offer/answer are re-derivable
// from fresh negotiation on reconnect, the rest is transient.
func (m *RoomManager) Relay(roomID domain.RoomID, from domain.UserID, kind string, payload json.RawMessage) error {
	m.mu.RLock()
	rs, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return core.ErrNotFound
	}

	rs.mu.Lock()
	if rs.room.Ended() {
		rs.mu.Unlock()
		return core.ErrNotFound
	}
	if !rs.room.IsParticipant(from) {
		rs.mu.Unlock()
		return fmt.Errorf("sender is not a participant: %w", core.ErrStateConflict)
	}
	if kind == KindOffer && rs.room.Status == domain.RoomPendingSignal {
		rs.room.Status = domain.RoomActive
	}
	partner, _ := rs.room.PartnerOf(from)
	rs.mu.Unlock()

	conn, ok := m.registry.ActiveConn(partner.ID)
	if !ok {
		log.Debug().Str("module", "app.rooms").Str("room", string(roomID)).
			Str("kind", kind).Msg("partner offline, message dropped")
		return nil
	}
	b, err := json.Marshal(relayEnvelope{Type: kind, Room: roomID, From: from, Payload: payload})
	if err != nil {
		return err
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		log.Debug().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("relay dropped")
	}
	return nil
}

// End transitions the room to ended exactly once; later calls are no-ops
// and the first caller's reason sticks. Exactly one SessionRecord is
// emitted per room.
func (m *RoomManager) End(roomID domain.RoomID, by domain.UserID, reason domain.EndReason) error {
	m.mu.Lock()
	rs, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	rs.mu.Lock()
	if rs.room.Ended() {
		rs.mu.Unlock()
		m.mu.Unlock()
		return nil
	}
	if !rs.room.IsParticipant(by) {
		rs.mu.Unlock()
		m.mu.Unlock()
		return fmt.Errorf("ender is not a participant: %w", core.ErrStateConflict)
	}
	rs.room.Status = domain.RoomEnded
	rs.room.EndReason = reason
	room := *rs.room
	rs.mu.Unlock()
	delete(m.rooms, roomID)
	delete(m.byUser, room.Offerer.ID)
	delete(m.byUser, room.Answerer.ID)
	m.mu.Unlock()

	endedAt := m.clock.Now()
	ev := sessionEndedEvent{Type: "session-ended", Room: roomID, Reason: reason}
	for _, p := range [2]domain.Identity{room.Offerer, room.Answerer} {
		m.notify.ToUser(p.ID, ev)
		if _, connected := m.registry.ActiveConn(p.ID); connected {
			m.presence.SetStatus(p.ID, StatusOnline)
		} else {
			m.presence.SetStatus(p.ID, StatusOffline)
		}
	}
	m.recorder.Record(room, endedAt)
	metrics.ActiveRooms.Dec()
	metrics.SessionsEnded.WithLabelValues(string(reason)).Inc()
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).
		Str("by", string(by)).Str("reason", string(reason)).Msg("room ended")
	return nil
}

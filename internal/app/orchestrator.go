package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

// Orchestrator wires the registries and exposes the message-level surface
// the signal adapter calls into. One method per client operation.
type Orchestrator struct {
	Registry  *ConnectionRegistry
	Presence  *PresenceTracker
	Queue     *MatchmakingQueue
	Rooms     *RoomManager
	Calls     *DirectCallDispatcher
	Reconnect *ReconnectCoordinator
	Notify    *Notifier
	Geo       core.GeoLookup // optional
}

// IdentifyResult tells the adapter what to push back: the bound identity
// and, when a grace window was still open, the room to resume.
type IdentifyResult struct {
	Identity domain.Identity
	Resumed  domain.RoomID
}

func (o *Orchestrator) Identify(ctx context.Context, connID core.ConnID, token string, remoteIP string) (IdentifyResult, error) {
	ident, stale, err := o.Registry.Identify(ctx, connID, token)
	if err != nil {
		return IdentifyResult{}, err
	}
	if o.Geo != nil && ident.CountryCode == "" && remoteIP != "" {
		if loc, ok := o.Geo.Lookup(ctx, remoteIP); ok {
			if enriched, ok := o.Registry.EnrichLocation(connID, loc.Country, loc.CountryCode); ok {
				ident = enriched
			}
		}
	}
	if stale != nil {
		// fire-and-forget conflict notice; the connection closes anyway
		o.Notify.ToConn(stale, conflictEvent{Type: "conflict"})
		stale.Close()
	}

	res := IdentifyResult{Identity: ident}
	if roomID, resumed := o.Reconnect.OnReidentified(ident.ID); resumed {
		res.Resumed = roomID
		o.Presence.SetStatus(ident.ID, StatusInRoom)
		return res, nil
	}
	if _, inRoom := o.Rooms.RoomOf(ident.ID); inRoom {
		o.Presence.SetStatus(ident.ID, StatusInRoom)
	} else {
		o.Presence.SetStatus(ident.ID, StatusOnline)
	}
	return res, nil
}

func (o *Orchestrator) UpdateToken(ctx context.Context, connID core.ConnID, token string) error {
	return o.Registry.UpdateToken(ctx, connID, token)
}

// JoinQueue enqueues the connection's identity. A returned room means the
// join matched immediately and both sides were already notified.
func (o *Orchestrator) JoinQueue(connID core.ConnID, mode domain.Mode, filter string) (*domain.Room, error) {
	ident, err := o.identityOf(connID)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = domain.ModeVoice
	}
	if cur, busy := o.Rooms.RoomOf(ident.ID); busy {
		return nil, fmt.Errorf("already in room %s: %w", cur, core.ErrStateConflict)
	}

	partner, self, matched := o.Queue.Join(ident, mode, filter)
	if !matched {
		return nil, nil
	}

	// earlier-enqueued waiter becomes the offerer
	room, err := o.Rooms.Create(partner.User, ident, mode)
	if err != nil {
		// either side raced into a room via direct call; re-queue the
		// one still free and drop the busy one
		log.Warn().Err(err).Str("module", "app.orchestrator").
			Str("user", string(ident.ID)).Msg("pairing lost room-creation race")
		if _, busy := o.Rooms.RoomOf(partner.User.ID); !busy {
			o.Queue.Restore(partner)
		}
		if _, busy := o.Rooms.RoomOf(ident.ID); !busy {
			o.Queue.Restore(self)
		}
		return nil, nil
	}
	o.announceRoom(room)
	return &room, nil
}

func (o *Orchestrator) LeaveQueue(connID core.ConnID) error {
	ident, err := o.identityOf(connID)
	if err != nil {
		return err
	}
	o.Queue.Leave(ident.ID)
	return nil
}

// Relay forwards a signaling payload to the partner in the sender's room.
func (o *Orchestrator) Relay(connID core.ConnID, kind string, payload json.RawMessage) error {
	ident, err := o.identityOf(connID)
	if err != nil {
		return err
	}
	roomID, ok := o.Rooms.RoomOf(ident.ID)
	if !ok {
		return core.ErrNotFound
	}
	return o.Rooms.Relay(roomID, ident.ID, kind, payload)
}

func (o *Orchestrator) EndSession(connID core.ConnID, reason domain.EndReason) error {
	ident, err := o.identityOf(connID)
	if err != nil {
		return err
	}
	roomID, ok := o.Rooms.RoomOf(ident.ID)
	if !ok {
		return core.ErrNotFound
	}
	if reason == "" {
		reason = domain.EndUserAction
	}
	return o.Rooms.End(roomID, ident.ID, reason)
}

func (o *Orchestrator) InviteCall(connID core.ConnID, target domain.UserID, mode domain.Mode) (domain.Invite, error) {
	ident, err := o.identityOf(connID)
	if err != nil {
		return domain.Invite{}, err
	}
	if mode == "" {
		mode = domain.ModeVoice
	}
	targetIdent, ok := o.Registry.IdentityByUser(target)
	if !ok {
		return domain.Invite{}, ErrTargetUnavailable
	}
	return o.Calls.Invite(ident, targetIdent, mode)
}

func (o *Orchestrator) RespondCall(connID core.ConnID, key domain.InviteKey, accept bool) (*domain.Room, error) {
	ident, err := o.identityOf(connID)
	if err != nil {
		return nil, err
	}
	room, err := o.Calls.Respond(key, ident.ID, accept)
	if err != nil {
		return nil, err
	}
	if room != nil {
		o.announceRoom(*room)
	}
	return room, nil
}

func (o *Orchestrator) CancelCall(connID core.ConnID, target domain.UserID) error {
	ident, err := o.identityOf(connID)
	if err != nil {
		return err
	}
	return o.Calls.Cancel(ident.ID, target)
}

func (o *Orchestrator) Watch(connID core.ConnID, ids ...domain.UserID) error {
	ident, err := o.identityOf(connID)
	if err != nil {
		return err
	}
	o.Presence.Watch(ident.ID, ids...)
	return nil
}

func (o *Orchestrator) Unwatch(connID core.ConnID, ids ...domain.UserID) error {
	ident, err := o.identityOf(connID)
	if err != nil {
		return err
	}
	o.Presence.Unwatch(ident.ID, ids...)
	return nil
}

func (o *Orchestrator) StatusOf(user domain.UserID) Status {
	return o.Presence.StatusOf(user)
}

func (o *Orchestrator) Touch(connID core.ConnID) {
	o.Registry.Touch(connID)
}

// OnDisconnect runs on transport close. The room, if any, is not ended
// here; the reconnect coordinator owns that decision.
func (o *Orchestrator) OnDisconnect(connID core.ConnID) {
	ident, wasActive := o.Registry.Release(connID)
	if !wasActive {
		return
	}
	o.Queue.Leave(ident.ID)
	o.Presence.DropWatcher(ident.ID)
	if o.Reconnect.OnConnectionLost(ident.ID) {
		// stay in-room for the duration of the grace window
		return
	}
	o.Presence.SetStatus(ident.ID, StatusOffline)
}

type Stats struct {
	Connections    int `json:"connections"`
	QueueDepth     int `json:"queue_depth"`
	ActiveRooms    int `json:"active_rooms"`
	PendingInvites int `json:"pending_invites"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Connections:    o.Registry.Count(),
		QueueDepth:     o.Queue.Depth(),
		ActiveRooms:    o.Rooms.Count(),
		PendingInvites: o.Calls.PendingCount(),
	}
}

func (o *Orchestrator) identityOf(connID core.ConnID) (domain.Identity, error) {
	if ident, ok := o.Registry.Resolve(connID); ok {
		return ident, nil
	}
	return domain.Identity{}, core.ErrNotIdentified
}

func (o *Orchestrator) announceRoom(room domain.Room) {
	for _, p := range [2]domain.Identity{room.Offerer, room.Answerer} {
		// a direct-call participant may still hold a queue entry
		o.Queue.Leave(p.ID)
		partner, _ := room.PartnerOf(p.ID)
		o.Notify.ToUser(p.ID, matchFoundEvent{
			Type:    "match-found",
			Room:    room.ID,
			Role:    room.RoleOf(p.ID),
			Mode:    room.Mode,
			Partner: partner,
		})
		o.Presence.SetStatus(p.ID, StatusInRoom)
	}
}

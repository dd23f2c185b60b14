package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

// Client-facing push events. Each send is one-way and best-effort,
// at most once per event.

type conflictEvent struct {
	Type string `json:"type"`
}

type matchFoundEvent struct {
	Type    string          `json:"type"`
	Room    domain.RoomID   `json:"room"`
	Role    domain.Role     `json:"role"`
	Mode    domain.Mode     `json:"mode"`
	Partner domain.Identity `json:"partner"`
}

type sessionEndedEvent struct {
	Type   string           `json:"type"`
	Room   domain.RoomID    `json:"room"`
	Reason domain.EndReason `json:"reason"`
}

type partnerReconnectingEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type partnerResumedEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type incomingCallEvent struct {
	Type      string           `json:"type"`
	Key       domain.InviteKey `json:"key"`
	Caller    domain.Identity  `json:"caller"`
	Mode      domain.Mode      `json:"mode"`
	ExpiresAt int64            `json:"expires_at"`
}

type callDeclinedEvent struct {
	Type string           `json:"type"`
	Key  domain.InviteKey `json:"key"`
}

type callCanceledEvent struct {
	Type string           `json:"type"`
	Key  domain.InviteKey `json:"key"`
}

type callExpiredEvent struct {
	Type string           `json:"type"`
	Key  domain.InviteKey `json:"key"`
}

type userStatusEvent struct {
	Type   string        `json:"type"`
	User   domain.UserID `json:"user"`
	Status Status        `json:"status"`
}

// Notifier pushes events to a user's current active connection. Delivery
// failure (no connection, backpressure) drops the event.
type Notifier struct {
	Registry *ConnectionRegistry
}

func (n *Notifier) ToUser(id domain.UserID, v any) {
	conn, ok := n.Registry.ActiveConn(id)
	if !ok {
		log.Debug().Str("module", "app.notify").Str("user", string(id)).Msg("no active connection, event dropped")
		return
	}
	n.ToConn(conn, v)
}

func (n *Notifier) ToConn(conn core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notify").Msg("event marshal")
		return
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		log.Debug().Err(err).Str("module", "app.notify").Msg("event dropped")
	}
}

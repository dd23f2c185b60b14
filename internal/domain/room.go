package domain

import "time"

type (
	RoomID string
	Mode   string
	Role   string
)

const ModeVoice Mode = "voice"

const (
	RoleOfferer  Role = "offerer"
	RoleAnswerer Role = "answerer"
)

type RoomStatus string

const (
	RoomPendingSignal RoomStatus = "pending-signal"
	RoomActive        RoomStatus = "active"
	RoomEnded         RoomStatus = "ended"
)

type EndReason string

const (
	EndUserAction        EndReason = "user-action"
	EndPartnerDisconnect EndReason = "partner-disconnect"
	EndSignalFailure     EndReason = "signal-failure"
	EndShutdown          EndReason = "shutdown"
)

// Room pairs exactly two identities for one voice session. The offerer is
// the participant that was waiting first (queue match) or that placed the
// call (direct call).
type Room struct {
	ID        RoomID
	Offerer   Identity
	Answerer  Identity
	Mode      Mode
	CreatedAt time.Time
	Status    RoomStatus
	EndReason EndReason
}

func (r *Room) Ended() bool { return r.Status == RoomEnded }

func (r *Room) IsParticipant(id UserID) bool {
	return r.Offerer.ID == id || r.Answerer.ID == id
}

func (r *Room) PartnerOf(id UserID) (Identity, bool) {
	switch id {
	case r.Offerer.ID:
		return r.Answerer, true
	case r.Answerer.ID:
		return r.Offerer, true
	}
	return Identity{}, false
}

func (r *Room) RoleOf(id UserID) Role {
	if r.Offerer.ID == id {
		return RoleOfferer
	}
	return RoleAnswerer
}

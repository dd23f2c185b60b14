package domain

import "time"

// SessionRecord is the immutable summary of an ended room, handed to the
// persistence collaborator exactly once.
type SessionRecord struct {
	RoomID    RoomID        `json:"room_id"`
	Offerer   Identity      `json:"offerer"`
	Answerer  Identity      `json:"answerer"`
	Mode      Mode          `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	EndReason EndReason     `json:"end_reason"`
}

package domain

import "time"

type InviteKey string

// Invite is a pending direct-call request from Caller to Target. It lives
// until accepted, declined, canceled or expired.
type Invite struct {
	Key       InviteKey
	Caller    Identity
	Target    Identity
	Mode      Mode
	CreatedAt time.Time
	ExpiresAt time.Time
}

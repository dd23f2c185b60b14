package core

import (
	"context"

	"github.com/peervoice/peervoice/internal/domain"
)

// AuthValidator is the external auth collaborator. Validate must support
// re-validation of a refreshed token without disrupting live state.
type AuthValidator interface {
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

// HistoryStore is the external persistence collaborator. Failures are
// logged and never fatal to a live session.
type HistoryStore interface {
	AppendSessionRecord(ctx context.Context, rec domain.SessionRecord) error
	ReadHistory(ctx context.Context, user domain.UserID, limit int) ([]domain.SessionRecord, error)
	UpsertFriendship(ctx context.Context, a, b domain.UserID) error
}

type Location struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city,omitempty"`
}

// GeoLookup resolves a remote address to a coarse location, best-effort.
// Private and loopback addresses short-circuit to not-found.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (Location, bool)
}

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
	"github.com/peervoice/peervoice/internal/metrics"
)

type connEntry struct {
	id           core.ConnID
	conn         core.SignalConnection
	identity     *domain.Identity
	identifiedAt time.Time
	lastSeen     time.Time
}

// ConnectionRegistry maps transport connections to identities and enforces
// the single-active-session policy: at most one active connection per
// identity, newest wins.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	auth   core.AuthValidator
	clock  clock.Clock
	conns  map[core.ConnID]*connEntry
	byUser map[domain.UserID]core.ConnID
}

func NewConnectionRegistry(auth core.AuthValidator, clk clock.Clock) *ConnectionRegistry {
	return &ConnectionRegistry{
		auth:   auth,
		clock:  clk,
		conns:  make(map[core.ConnID]*connEntry),
		byUser: make(map[domain.UserID]core.ConnID),
	}
}

// Register admits a fresh, not yet identified transport connection.
func (r *ConnectionRegistry) Register(id core.ConnID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{id: id, conn: conn, lastSeen: r.clock.Now()}
	metrics.ActiveConnections.Inc()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection registered")
}

// Identify validates the token and binds the identity to the connection.
// Re-identifying the same connection with the same identity is a token
// refresh, not a supersession of self. If a different connection owns the
// identity it is returned as stale; the caller notifies and closes it
// outside the registry lock.
func (r *ConnectionRegistry) Identify(ctx context.Context, id core.ConnID, token string) (domain.Identity, core.SignalConnection, error) {
	ident, err := r.auth.Validate(ctx, token)
	if err != nil {
		return domain.Identity{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Identity{}, nil, core.ErrNotFound
	}
	if e.identity != nil {
		if e.identity.ID != ident.ID {
			return domain.Identity{}, nil, fmt.Errorf("connection already identified as another user: %w", core.ErrStateConflict)
		}
		e.identity = &ident
		return ident, nil, nil
	}

	var stale core.SignalConnection
	if old, bound := r.byUser[ident.ID]; bound && old != id {
		if oe, live := r.conns[old]; live {
			stale = oe.conn
			oe.identity = nil
			metrics.Supersessions.Inc()
			log.Info().Str("module", "app.registry").Str("user", string(ident.ID)).
				Str("old_conn", string(old)).Str("new_conn", string(id)).Msg("connection superseded")
		}
	}
	e.identity = &ident
	e.identifiedAt = r.clock.Now()
	r.byUser[ident.ID] = id
	return ident, stale, nil
}

// UpdateToken re-validates a refreshed credential without disturbing the
// active room. The refreshed token must carry the same user id.
func (r *ConnectionRegistry) UpdateToken(ctx context.Context, id core.ConnID, token string) error {
	ident, err := r.auth.Validate(ctx, token)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.identity == nil {
		return core.ErrNotIdentified
	}
	if e.identity.ID != ident.ID {
		return fmt.Errorf("refreshed token belongs to another user: %w", core.ErrStateConflict)
	}
	e.identity = &ident
	return nil
}

// EnrichLocation fills in country metadata the token did not carry.
// No-op when the identity already has a country code.
func (r *ConnectionRegistry) EnrichLocation(id core.ConnID, country, cc string) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.identity == nil || e.identity.CountryCode != "" {
		return domain.Identity{}, false
	}
	ident := *e.identity
	ident.Country = country
	ident.CountryCode = cc
	e.identity = &ident
	return ident, true
}

func (r *ConnectionRegistry) Resolve(id core.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok && e.identity != nil {
		return *e.identity, true
	}
	return domain.Identity{}, false
}

// IdentityByUser returns the identity currently bound to an active
// connection of the given user.
func (r *ConnectionRegistry) IdentityByUser(user domain.UserID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byUser[user]; ok {
		if e, live := r.conns[id]; live && e.identity != nil {
			return *e.identity, true
		}
	}
	return domain.Identity{}, false
}

func (r *ConnectionRegistry) ActiveConn(user domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byUser[user]; ok {
		if e, live := r.conns[id]; live {
			return e.conn, true
		}
	}
	return nil, false
}

func (r *ConnectionRegistry) Touch(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.lastSeen = r.clock.Now()
	}
}

// Release drops the connection on transport close. It reports the bound
// identity and whether this connection was still its active owner; a
// superseded connection going away must not disturb the new owner.
func (r *ConnectionRegistry) Release(id core.ConnID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Identity{}, false
	}
	delete(r.conns, id)
	metrics.ActiveConnections.Dec()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection released")
	if e.identity == nil {
		return domain.Identity{}, false
	}
	if r.byUser[e.identity.ID] != id {
		return domain.Identity{}, false
	}
	delete(r.byUser, e.identity.ID)
	return *e.identity, true
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

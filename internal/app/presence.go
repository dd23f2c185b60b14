package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/domain"
)

type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusInRoom  Status = "in-room"
)

// PresenceTracker keeps identity status and watch-lists. Watcher pushes
// happen outside the lock and are best-effort only.
type PresenceTracker struct {
	mu       sync.RWMutex
	notify   *Notifier
	status   map[domain.UserID]Status
	watchers map[domain.UserID]map[domain.UserID]struct{}
}

func NewPresenceTracker(notify *Notifier) *PresenceTracker {
	return &PresenceTracker{
		notify:   notify,
		status:   make(map[domain.UserID]Status),
		watchers: make(map[domain.UserID]map[domain.UserID]struct{}),
	}
}

func (p *PresenceTracker) SetStatus(user domain.UserID, st Status) {
	p.mu.Lock()
	prev, ok := p.status[user]
	if !ok {
		prev = StatusOffline
	}
	if prev == st {
		p.mu.Unlock()
		return
	}
	if st == StatusOffline {
		delete(p.status, user)
	} else {
		p.status[user] = st
	}
	targets := make([]domain.UserID, 0, len(p.watchers[user]))
	for w := range p.watchers[user] {
		targets = append(targets, w)
	}
	p.mu.Unlock()

	log.Debug().Str("module", "app.presence").Str("user", string(user)).Str("status", string(st)).Msg("status changed")
	for _, w := range targets {
		p.notify.ToUser(w, userStatusEvent{Type: "user-status", User: user, Status: st})
	}
}

func (p *PresenceTracker) StatusOf(user domain.UserID) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if st, ok := p.status[user]; ok {
		return st
	}
	return StatusOffline
}

// Watch is idempotent; watching an offline or unknown user is allowed.
func (p *PresenceTracker) Watch(watcher domain.UserID, ids ...domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		set, ok := p.watchers[id]
		if !ok {
			set = make(map[domain.UserID]struct{})
			p.watchers[id] = set
		}
		set[watcher] = struct{}{}
	}
}

func (p *PresenceTracker) Unwatch(watcher domain.UserID, ids ...domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if set, ok := p.watchers[id]; ok {
			delete(set, watcher)
			if len(set) == 0 {
				delete(p.watchers, id)
			}
		}
	}
}

// DropWatcher removes the watcher from every watch-list, called when its
// connection goes away for good.
func (p *PresenceTracker) DropWatcher(watcher domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, set := range p.watchers {
		delete(set, watcher)
		if len(set) == 0 {
			delete(p.watchers, id)
		}
	}
}

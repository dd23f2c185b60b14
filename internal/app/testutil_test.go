package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

// fakeConn records every frame pushed to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	cp := make(core.Frame, len(f))
	copy(cp, f)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// events decodes all received frames of the given type.
func (c *fakeConn) events(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		if json.Unmarshal(f, &m) == nil && m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) lastEvent(t *testing.T, typ string) map[string]any {
	t.Helper()
	evs := c.events(typ)
	require.NotEmpty(t, evs, "expected %q event", typ)
	return evs[len(evs)-1]
}

type fakeAuth struct {
	mu     sync.Mutex
	idents map[string]domain.Identity
}

func (a *fakeAuth) Validate(_ context.Context, token string) (domain.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ident, ok := a.idents[token]; ok {
		return ident, nil
	}
	return domain.Identity{}, core.ErrInvalidToken
}

type fakeStore struct {
	mu      sync.Mutex
	records []domain.SessionRecord
	friends int
	fail    bool
}

func (s *fakeStore) AppendSessionRecord(_ context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) ReadHistory(_ context.Context, user domain.UserID, _ int) ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SessionRecord
	for _, r := range s.records {
		if r.Offerer.ID == user || r.Answerer.ID == user {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertFriendship(context.Context, domain.UserID, domain.UserID) error {
	s.mu.Lock()
	s.friends++
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) recorded() []domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionRecord, len(s.records))
	copy(out, s.records)
	return out
}

const (
	testGrace = 10 * time.Second
	testTTL   = 30 * time.Second
)

type testEnv struct {
	clk      *clock.Mock
	auth     *fakeAuth
	store    *fakeStore
	recorder *SessionHistoryRecorder
	orch     *Orchestrator
	n        int
}

// history drains in-flight recorder writes and returns what was stored.
func (e *testEnv) history() []domain.SessionRecord {
	e.recorder.Drain()
	return e.store.recorded()
}

func newTestEnv() *testEnv {
	clk := clock.NewMock()
	fa := &fakeAuth{idents: make(map[string]domain.Identity)}
	fs := &fakeStore{}

	registry := NewConnectionRegistry(fa, clk)
	notify := &Notifier{Registry: registry}
	presence := NewPresenceTracker(notify)
	recorder := NewSessionHistoryRecorder(fs, time.Second)
	rooms := NewRoomManager(clk, registry, presence, notify, recorder)
	queue := NewMatchmakingQueue(clk)
	calls := NewDirectCallDispatcher(clk, testTTL, rooms, presence, notify)
	reconnect := NewReconnectCoordinator(clk, testGrace, rooms, notify)

	return &testEnv{
		clk:      clk,
		auth:     fa,
		store:    fs,
		recorder: recorder,
		orch: &Orchestrator{
			Registry:  registry,
			Presence:  presence,
			Queue:     queue,
			Rooms:     rooms,
			Calls:     calls,
			Reconnect: reconnect,
			Notify:    notify,
		},
	}
}

// user registers a token for the given id and returns it.
func (e *testEnv) user(id, cc string) string {
	token := "tok-" + id
	e.auth.mu.Lock()
	e.auth.idents[token] = domain.Identity{
		ID:          domain.UserID(id),
		Username:    id,
		CountryCode: cc,
	}
	e.auth.mu.Unlock()
	return token
}

// connect opens a fresh transport connection and identifies it.
func (e *testEnv) connect(t *testing.T, token string) (core.ConnID, *fakeConn) {
	t.Helper()
	e.n++
	connID := core.ConnID(fmt.Sprintf("conn-%d", e.n))
	fc := &fakeConn{}
	e.orch.Registry.Register(connID, fc)
	_, err := e.orch.Identify(context.Background(), connID, token, "")
	require.NoError(t, err)
	return connID, fc
}

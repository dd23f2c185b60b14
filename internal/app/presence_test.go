package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOfUnknownIsOffline(t *testing.T) {
	env := newTestEnv()
	assert.Equal(t, StatusOffline, env.orch.Presence.StatusOf("ghost"))
}

func TestWatchersAreNotified(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	_, carol := env.connect(t, env.user("carol", ""))

	env.orch.Presence.Watch("carol", "alice")

	env.orch.Presence.SetStatus("alice", StatusInRoom)
	evs := carol.events("user-status")
	require.Len(t, evs, 1)
	assert.Equal(t, "alice", evs[0]["user"])
	assert.Equal(t, string(StatusInRoom), evs[0]["status"])

	// unchanged status pushes nothing
	env.orch.Presence.SetStatus("alice", StatusInRoom)
	assert.Len(t, carol.events("user-status"), 1)

	env.orch.Presence.SetStatus("alice", StatusOffline)
	assert.Len(t, carol.events("user-status"), 2)
}

func TestWatchIsIdempotent(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	_, carol := env.connect(t, env.user("carol", ""))

	env.orch.Presence.Watch("carol", "alice")
	env.orch.Presence.Watch("carol", "alice")

	env.orch.Presence.SetStatus("alice", StatusInRoom)
	assert.Len(t, carol.events("user-status"), 1, "one push per change, not per watch call")
}

func TestUnwatchStopsNotifications(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	_, carol := env.connect(t, env.user("carol", ""))

	env.orch.Presence.Watch("carol", "alice")
	env.orch.Presence.Unwatch("carol", "alice")

	env.orch.Presence.SetStatus("alice", StatusInRoom)
	assert.Empty(t, carol.events("user-status"))
}

func TestDropWatcherClearsAllWatchLists(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))
	carolConn, carol := env.connect(t, env.user("carol", ""))

	env.orch.Presence.Watch("carol", "alice", "bob")
	env.orch.OnDisconnect(carolConn)

	env.orch.Presence.SetStatus("alice", StatusInRoom)
	env.orch.Presence.SetStatus("bob", StatusInRoom)
	assert.Empty(t, carol.events("user-status"))
}

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

func TestInviteNotifiesTarget(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	_, bobConn := env.connect(t, env.user("bob", ""))

	inv, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.Key)
	assert.Equal(t, 1, env.orch.Calls.PendingCount())

	ev := bobConn.lastEvent(t, "incoming-call")
	assert.Equal(t, string(inv.Key), ev["key"])
	caller := ev["caller"].(map[string]any)
	assert.Equal(t, "alice", caller["id"])
}

func TestInviteRejections(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))
	env.connect(t, env.user("carol", ""))
	env.connect(t, env.user("dave", ""))

	// self-call
	_, err := env.orch.Calls.Invite(ident("alice"), ident("alice"), domain.ModeVoice)
	assert.ErrorIs(t, err, core.ErrStateConflict)

	// offline target
	_, err = env.orch.Calls.Invite(ident("alice"), ident("nobody"), domain.ModeVoice)
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	// target already in a room
	_, err = env.orch.Rooms.Create(ident("carol"), ident("dave"), domain.ModeVoice)
	require.NoError(t, err)
	env.orch.Presence.SetStatus("carol", StatusInRoom)
	env.orch.Presence.SetStatus("dave", StatusInRoom)
	_, err = env.orch.Calls.Invite(ident("alice"), ident("carol"), domain.ModeVoice)
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	// caller already in a room
	_, err = env.orch.Calls.Invite(ident("carol"), ident("bob"), domain.ModeVoice)
	assert.ErrorIs(t, err, core.ErrStateConflict)

	// duplicate pending invite, either direction
	_, err = env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)
	_, err = env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	assert.ErrorIs(t, err, ErrAlreadyInvited)
	_, err = env.orch.Calls.Invite(ident("bob"), ident("alice"), domain.ModeVoice)
	assert.ErrorIs(t, err, ErrAlreadyInvited)
}

func TestRespondAcceptCreatesRoom(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))

	inv, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)

	room, err := env.orch.Calls.Respond(inv.Key, "bob", true)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, domain.UserID("alice"), room.Offerer.ID, "caller takes the offerer role")
	assert.Equal(t, domain.UserID("bob"), room.Answerer.ID)
	assert.Equal(t, 0, env.orch.Calls.PendingCount())

	// key is spent
	_, err = env.orch.Calls.Respond(inv.Key, "bob", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRespondDecline(t *testing.T) {
	env := newTestEnv()
	_, aliceConn := env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))

	inv, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)

	room, err := env.orch.Calls.Respond(inv.Key, "bob", false)
	require.NoError(t, err)
	assert.Nil(t, room)
	assert.Equal(t, 0, env.orch.Rooms.Count())

	ev := aliceConn.lastEvent(t, "call-declined")
	assert.Equal(t, string(inv.Key), ev["key"])
}

func TestRespondOnlyByTarget(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))
	env.connect(t, env.user("mallory", ""))

	inv, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)

	_, err = env.orch.Calls.Respond(inv.Key, "mallory", true)
	assert.ErrorIs(t, err, core.ErrStateConflict)
	assert.Equal(t, 1, env.orch.Calls.PendingCount(), "invite still pending")
}

func TestInviteExpiryNotifiesCallerOnce(t *testing.T) {
	env := newTestEnv()
	_, aliceConn := env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))

	inv, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)

	env.clk.Add(testTTL)
	require.Len(t, aliceConn.events("call-expired"), 1)
	assert.Equal(t, 0, env.orch.Calls.PendingCount())

	// a late respond sees Expired, not an unknown key, and the caller is
	// not notified a second time
	_, err = env.orch.Calls.Respond(inv.Key, "bob", true)
	assert.ErrorIs(t, err, ErrInviteExpired)
	assert.Len(t, aliceConn.events("call-expired"), 1)

	// after the tombstone is purged the key is simply unknown
	env.clk.Add(testTTL)
	_, err = env.orch.Calls.Respond(inv.Key, "bob", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Len(t, aliceConn.events("call-expired"), 1)

	// the pair may invite again once the first invite expired
	_, err = env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	assert.NoError(t, err)
}

func TestStaleRespondKeepsNewerInviteIntact(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	env.connect(t, env.user("bob", ""))

	first, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)
	env.clk.Add(testTTL)

	// the pair is free again; a second invite goes out while the first
	// key still lingers as a tombstone
	second, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)
	require.Equal(t, 1, env.orch.Calls.PendingCount())

	// a late respond to the stale key must not touch the live invite
	_, err = env.orch.Calls.Respond(first.Key, "bob", true)
	assert.ErrorIs(t, err, ErrInviteExpired)
	assert.Equal(t, 1, env.orch.Calls.PendingCount())

	_, err = env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	assert.ErrorIs(t, err, ErrAlreadyInvited)

	// the live invite is still fully usable
	room, err := env.orch.Calls.Respond(second.Key, "bob", true)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, 0, env.orch.Calls.PendingCount())
}

func TestCancelNotifiesTarget(t *testing.T) {
	env := newTestEnv()
	env.connect(t, env.user("alice", ""))
	_, bobConn := env.connect(t, env.user("bob", ""))

	inv, err := env.orch.Calls.Invite(ident("alice"), ident("bob"), domain.ModeVoice)
	require.NoError(t, err)

	// only the caller may cancel
	err = env.orch.Calls.Cancel("bob", "alice")
	assert.ErrorIs(t, err, core.ErrStateConflict)

	require.NoError(t, env.orch.Calls.Cancel("alice", "bob"))
	ev := bobConn.lastEvent(t, "call-canceled")
	assert.Equal(t, string(inv.Key), ev["key"])
	assert.Equal(t, 0, env.orch.Calls.PendingCount())

	err = env.orch.Calls.Cancel("alice", "bob")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

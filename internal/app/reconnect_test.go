package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

// reidentify opens a fresh connection for the token without the connect
// helper, so the resume outcome is observable.
func reidentify(t *testing.T, env *testEnv, token string) (IdentifyResult, *fakeConn) {
	t.Helper()
	env.n++
	connID := core.ConnID("re-conn-" + token)
	fc := &fakeConn{}
	env.orch.Registry.Register(connID, fc)
	res, err := env.orch.Identify(context.Background(), connID, token, "")
	require.NoError(t, err)
	return res, fc
}

func TestReconnectResumesWithinGrace(t *testing.T) {
	env := newTestEnv()
	token := env.user("u1", "")
	u1Conn, _ := env.connect(t, token)
	u2Conn, u2 := env.connect(t, env.user("u2", ""))
	room := matchPair(t, env, u1Conn, u2Conn)

	env.orch.OnDisconnect(u1Conn)
	require.Len(t, u2.events("partner-reconnecting"), 1)
	assert.Equal(t, StatusInRoom, env.orch.StatusOf("u1"), "stays in-room during the grace window")

	env.clk.Add(testGrace / 2)

	// same identity returns on a fresh connection and resumes the same
	// room id
	res, _ := reidentify(t, env, token)
	assert.Equal(t, room.ID, res.Resumed)
	require.Len(t, u2.events("partner-resumed"), 1)
	assert.Equal(t, StatusInRoom, env.orch.StatusOf("u1"))

	// the stale grace timer must not end the room later
	env.clk.Add(2 * testGrace)
	assert.Equal(t, 1, env.orch.Rooms.Count())
	assert.Empty(t, u2.events("session-ended"))
	assert.Empty(t, env.history())
}

func TestReconnectTimeoutEndsRoom(t *testing.T) {
	env := newTestEnv()
	token := env.user("u1", "")
	u1Conn, _ := env.connect(t, token)
	u2Conn, u2 := env.connect(t, env.user("u2", ""))
	matchPair(t, env, u1Conn, u2Conn)

	env.orch.OnDisconnect(u1Conn)
	env.clk.Add(testGrace)

	evs := u2.events("session-ended")
	require.Len(t, evs, 1)
	assert.Equal(t, string(domain.EndPartnerDisconnect), evs[0]["reason"])
	assert.Equal(t, 0, env.orch.Rooms.Count())
	assert.Equal(t, StatusOnline, env.orch.StatusOf("u2"))
	assert.Equal(t, StatusOffline, env.orch.StatusOf("u1"))

	recs := env.history()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.EndPartnerDisconnect, recs[0].EndReason)

	// past the grace window nothing is resumable
	res, _ := reidentify(t, env, token)
	assert.Empty(t, res.Resumed)
	assert.Equal(t, StatusOnline, env.orch.StatusOf("u1"))
}

func TestEndDuringGraceInvalidatesResume(t *testing.T) {
	env := newTestEnv()
	token := env.user("u1", "")
	u1Conn, _ := env.connect(t, token)
	u2Conn, u2 := env.connect(t, env.user("u2", ""))
	matchPair(t, env, u1Conn, u2Conn)

	env.orch.OnDisconnect(u1Conn)
	require.NoError(t, env.orch.EndSession(u2Conn, domain.EndUserAction))
	require.Len(t, u2.events("session-ended"), 1)

	// the returning user has nothing to resume
	res, _ := reidentify(t, env, token)
	assert.Empty(t, res.Resumed)
	assert.Equal(t, StatusOnline, env.orch.StatusOf("u1"))

	// the orphaned grace timer stays quiet
	env.clk.Add(2 * testGrace)
	recs := env.history()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.EndUserAction, recs[0].EndReason)
}

func TestDisconnectWithoutRoomNoGrace(t *testing.T) {
	env := newTestEnv()
	conn, _ := env.connect(t, env.user("u1", ""))
	env.orch.OnDisconnect(conn)
	assert.Equal(t, StatusOffline, env.orch.StatusOf("u1"))
}

func TestGraceWindowDefault(t *testing.T) {
	env := newTestEnv()
	c := NewReconnectCoordinator(env.clk, 0, env.orch.Rooms, env.orch.Notify)
	assert.Equal(t, 12*time.Second, c.grace)
}

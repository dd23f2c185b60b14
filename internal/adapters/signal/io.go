package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/app"
	"github.com/peervoice/peervoice/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.Opts.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, connID core.ConnID, remoteIP string, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(connID)
		ctl.Limiter.Forget(connID)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, connID, remoteIP, c, data)
		}
	}
}

func (ctl *SignalWSController) handleMessage(ctx context.Context, connID core.ConnID, remoteIP string, c *WsSignalConn, data []byte) {
	if !ctl.Limiter.Allow(connID) {
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "rate_limited"})
		return
	}
	ctl.Orch.Touch(connID)

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "identify":
		ctl.handleIdentify(ctx, connID, remoteIP, c, data)
	case "update-token":
		ctl.handleUpdateToken(ctx, connID, c, data)
	case "whoami":
		ctl.handleWhoAmI(connID, c)
	case "join-queue":
		ctl.handleJoinQueue(connID, c, data)
	case "leave-queue":
		ctl.handleLeaveQueue(connID, c)
	case "offer", "answer", "candidate", "toggle-mute", "signal-strength":
		ctl.handleRelay(connID, c, env.Type, data)
	case "end-session":
		ctl.handleEndSession(connID, c, data)
	case "call":
		ctl.handleCall(connID, c, data)
	case "call-response":
		ctl.handleCallResponse(connID, c, data)
	case "call-cancel":
		ctl.handleCallCancel(connID, c, data)
	case "watch":
		ctl.handleWatch(connID, c, data)
	case "unwatch":
		ctl.handleUnwatch(connID, c, data)
	case "get-status":
		ctl.handleGetStatus(connID, c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendErr(c *WsSignalConn, err error) {
	switch {
	case core.IsAuthError(err):
		ctl.sendJSON(c, map[string]any{"type": "auth-error", "error": err.Error()})
	case errors.Is(err, app.ErrInviteExpired):
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "expired"})
	case errors.Is(err, app.ErrTargetUnavailable):
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "target_unavailable"})
	case errors.Is(err, app.ErrAlreadyInvited):
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "already_invited"})
	case errors.Is(err, core.ErrNotIdentified):
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "not_identified"})
	case errors.Is(err, core.ErrNotFound):
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "not_found"})
	case errors.Is(err, core.ErrStateConflict):
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "state_conflict"})
	default:
		log.Error().Err(err).Str("module", "signal").Msg("operation failed")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "internal"})
	}
}

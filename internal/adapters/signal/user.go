package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

func (ctl *SignalWSController) handleIdentify(
	ctx context.Context,
	connID core.ConnID,
	remoteIP string,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad identify payload")
		return
	}

	res, err := ctl.Orch.Identify(ctx, connID, p.Token, remoteIP)
	if err != nil {
		ctl.sendErr(conn, err)
		return
	}

	resp := struct {
		Type    string          `json:"type"`
		User    domain.Identity `json:"user"`
		Resumed domain.RoomID   `json:"resumed_room,omitempty"`
	}{
		Type:    "identified",
		User:    res.Identity,
		Resumed: res.Resumed,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleUpdateToken(
	ctx context.Context,
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad update-token payload")
		return
	}
	if err := ctl.Orch.UpdateToken(ctx, connID, p.Token); err != nil {
		ctl.sendErr(conn, err)
		return
	}
	ctl.sendJSON(conn, map[string]any{"type": "token-updated"})
}

func (ctl *SignalWSController) handleWhoAmI(
	connID core.ConnID,
	conn *WsSignalConn,
) {
	ident, ok := ctl.Orch.Registry.Resolve(connID)
	if !ok {
		ctl.sendErr(conn, core.ErrNotIdentified)
		return
	}

	resp := struct {
		Type string          `json:"type"`
		User domain.Identity `json:"user"`
		Room domain.RoomID   `json:"room,omitempty"`
	}{
		Type: "whoami",
		User: ident,
	}
	if roomID, ok := ctl.Orch.Rooms.RoomOf(ident.ID); ok {
		resp.Room = roomID
	}
	ctl.sendJSON(conn, resp)
}

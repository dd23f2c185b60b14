package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

func (ctl *SignalWSController) handleCall(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type   string `json:"type"`
		Target string `json:"target"`
		Mode   string `json:"mode,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad call payload")
		return
	}

	inv, err := ctl.Orch.InviteCall(connID, domain.UserID(p.Target), domain.Mode(p.Mode))
	if err != nil {
		ctl.sendErr(conn, err)
		return
	}
	resp := struct {
		Type      string           `json:"type"`
		Key       domain.InviteKey `json:"key"`
		ExpiresAt int64            `json:"expires_at"`
	}{
		Type:      "call-pending",
		Key:       inv.Key,
		ExpiresAt: inv.ExpiresAt.Unix(),
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleCallResponse(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type   string `json:"type"`
		Key    string `json:"key"`
		Accept bool   `json:"accept"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Key == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-response payload")
		return
	}

	if _, err := ctl.Orch.RespondCall(connID, domain.InviteKey(p.Key), p.Accept); err != nil {
		ctl.sendErr(conn, err)
		return
	}
	if !p.Accept {
		ctl.sendJSON(conn, map[string]any{"type": "call-declined", "key": p.Key})
	}
	// on accept, match-found was already pushed to both sides
}

func (ctl *SignalWSController) handleCallCancel(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type   string `json:"type"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad call-cancel payload")
		return
	}

	if err := ctl.Orch.CancelCall(connID, domain.UserID(p.Target)); err != nil {
		ctl.sendErr(conn, err)
		return
	}
	ctl.sendJSON(conn, map[string]any{"type": "call-canceled", "target": p.Target})
}

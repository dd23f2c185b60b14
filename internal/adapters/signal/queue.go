package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

func (ctl *SignalWSController) handleJoinQueue(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type   string `json:"type"`
		Mode   string `json:"mode,omitempty"`
		Filter string `json:"filter,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join-queue payload")
		return
	}

	room, err := ctl.Orch.JoinQueue(connID, domain.Mode(p.Mode), p.Filter)
	if err != nil {
		ctl.sendErr(conn, err)
		return
	}
	if room != nil {
		// match-found was already pushed to both sides
		return
	}
	ctl.sendJSON(conn, map[string]any{"type": "queued"})
}

func (ctl *SignalWSController) handleLeaveQueue(
	connID core.ConnID,
	conn *WsSignalConn,
) {
	if err := ctl.Orch.LeaveQueue(connID); err != nil {
		ctl.sendErr(conn, err)
		return
	}
	ctl.sendJSON(conn, map[string]any{"type": "left-queue"})
}

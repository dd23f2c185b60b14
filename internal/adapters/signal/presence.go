package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

func (ctl *SignalWSController) handleWatch(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	users, ok := ctl.decodeUsers(conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.Watch(connID, users...); err != nil {
		ctl.sendErr(conn, err)
		return
	}
	// answer with the current statuses so the client can seed its view
	statuses := make(map[domain.UserID]string, len(users))
	for _, u := range users {
		statuses[u] = string(ctl.Orch.StatusOf(u))
	}
	ctl.sendJSON(conn, map[string]any{"type": "watching", "statuses": statuses})
}

func (ctl *SignalWSController) handleUnwatch(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	users, ok := ctl.decodeUsers(conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.Unwatch(connID, users...); err != nil {
		ctl.sendErr(conn, err)
	}
}

func (ctl *SignalWSController) handleGetStatus(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type string `json:"type"`
		User string `json:"user"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.User == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad get-status payload")
		return
	}
	if _, ok := ctl.Orch.Registry.Resolve(connID); !ok {
		ctl.sendErr(conn, core.ErrNotIdentified)
		return
	}
	resp := struct {
		Type   string        `json:"type"`
		User   domain.UserID `json:"user"`
		Status string        `json:"status"`
	}{
		Type:   "user-status",
		User:   domain.UserID(p.User),
		Status: string(ctl.Orch.StatusOf(domain.UserID(p.User))),
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) decodeUsers(conn *WsSignalConn, data []byte) ([]domain.UserID, bool) {
	var p struct {
		Type  string   `json:"type"`
		Users []string `json:"users"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.Users) == 0 {
		log.Error().Err(err).Str("module", "signal").Msg("bad watch payload")
		return nil, false
	}
	users := make([]domain.UserID, 0, len(p.Users))
	for _, u := range p.Users {
		users = append(users, domain.UserID(u))
	}
	return users, true
}

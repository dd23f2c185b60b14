package signal

import "time"

// handlePing answers the client keepalive; last-seen was already
// touched in the dispatch path.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, map[string]any{"type": "pong", "ts": time.Now().Unix()})
}

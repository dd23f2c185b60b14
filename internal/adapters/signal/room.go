package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/app"
	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

// handleRelay forwards offer/answer/candidate/toggle-mute/signal-strength
// to the partner. SDP and ICE payloads get a shape check against pion
// types before relaying; the bytes still travel verbatim.
func (ctl *SignalWSController) handleRelay(
	connID core.ConnID,
	conn *WsSignalConn,
	kind string,
	data []byte,
) {
	var p struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad relay payload")
		return
	}

	switch kind {
	case app.KindOffer, app.KindAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(p.Payload, &sd); err != nil || sd.SDP == "" {
			ctl.sendJSON(conn, map[string]any{"type": "error", "error": "bad_sdp"})
			return
		}
	case app.KindCandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Payload, &ci); err != nil || ci.Candidate == "" {
			ctl.sendJSON(conn, map[string]any{"type": "error", "error": "bad_candidate"})
			return
		}
	}

	if err := ctl.Orch.Relay(connID, kind, p.Payload); err != nil {
		ctl.sendErr(conn, err)
	}
}

func (ctl *SignalWSController) handleEndSession(
	connID core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Type   string `json:"type"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end-session payload")
		return
	}

	reason := domain.EndReason(p.Reason)
	switch reason {
	case "", domain.EndUserAction, domain.EndSignalFailure:
	default:
		// clients may not claim disconnect-class reasons
		reason = domain.EndUserAction
	}
	if err := ctl.Orch.EndSession(connID, reason); err != nil {
		ctl.sendErr(conn, err)
	}
}

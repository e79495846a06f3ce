package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codesync/collab/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cl.sid)
		ctl.Limiter.Forget(cl.sid)
		cancel()
		cl.conn.Close()
	}()

	ws := cl.conn.conn
	ws.SetReadLimit(ctl.Settings.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, cl, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	if !ctl.Limiter.Allow(cl.sid) {
		ctl.sendError(cl.conn, "rate_limited")
		return
	}
	if !gjson.ValidBytes(data) {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("bad json")
		ctl.sendError(cl.conn, "bad_json")
		return
	}
	typ := gjson.GetBytes(data, "type").String()

	switch typ {
	case protocol.JoinWorkspace:
		ctl.handleJoinWorkspace(ctx, cl, data)
	case protocol.LeaveWorkspace:
		ctl.Orch.Leave(cl.sid)
	case protocol.JoinFile:
		ctl.handleJoinFile(ctx, cl, data)
	case protocol.CodeChange:
		ctl.handleCodeChange(cl, data)
	case protocol.CursorPosition:
		ctl.handleCursor(cl, data)
	case protocol.RoleSync:
		ctl.logDecision(cl, typ, ctl.Orch.SyncRole(ctx, cl.sid))
	case protocol.VoiceJoin, protocol.VoiceLeave:
		ctl.handleVoiceMembership(cl, typ, data)
	case protocol.VoiceOffer, protocol.VoiceAnswer, protocol.VoiceICECandidate:
		ctl.handleVoiceRelay(cl, typ, data)
	case protocol.CommentAdded, protocol.CommentUpdated, protocol.CommentDeleted, protocol.ReactionToggled:
		ctl.handleComment(cl, typ, data)
	case protocol.Ping:
		ctl.sendJSON(cl.conn, struct {
			Type string `json:"type"`
		}{Type: protocol.Pong})
	default:
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Str("type", typ).Msg("unknown signal")
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

func (ctl *SignalWSController) sendError(c *WsSignalConn, reason string) {
	ctl.sendJSON(c, protocol.ErrorMsg{Type: protocol.Error, Error: reason})
}

// Package signal is the WebSocket adapter: it decodes frames, validates them
// and hands them to the orchestrator. No collaboration state lives here.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/codesync/collab/internal/app/orch"
	"github.com/codesync/collab/internal/auth"
	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (s Settings) withDefaults() Settings {
	if s.ReadLimit <= 0 {
		s.ReadLimit = 1 << 20
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.PingPeriod <= 0 || s.PingPeriod >= s.PongWait {
		s.PingPeriod = s.PongWait * 9 / 10
	}
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 256
	}
	return s
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *EventRateLimiter
	Settings Settings

	upgrader websocket.Upgrader
}

// NewSignalWSController accepts every origin; CORS policy is enforced in
// front of the router.
func NewSignalWSController(o *orch.Orchestrator, limiter *EventRateLimiter, settings Settings) *SignalWSController {
	if limiter == nil {
		limiter = NewEventRateLimiter(0, 1)
	}
	return &SignalWSController{
		Orch:     o,
		Limiter:  limiter,
		Settings: settings.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// client is the adapter-side view of one socket.
type client struct {
	sid      core.SessionID
	conn     *WsSignalConn
	ident    domain.Identity
	verified bool
}

// HandleSignal upgrades the request and runs the socket until it closes or
// ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ident, verified, _ := auth.FromContext(c)

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cl := &client{
		sid:      core.SessionID(uuid.NewString()),
		conn:     NewWsSignalConn(ws, ctl.Settings.SendBuffer),
		ident:    ident,
		verified: verified,
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("user", string(ident.UserID)).Bool("verified", verified).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(cl.sid, cl.conn, cancel)

	go ctl.writePump(ctx, cl.conn)
	go ctl.readPump(ctx, cancel, cl)
}

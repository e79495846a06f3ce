package http

import (
	"context"
	"net/http"

	"github.com/codesync/collab/internal/adapters/signal"
	"github.com/codesync/collab/internal/app/orch"
	"github.com/codesync/collab/internal/auth"
	"github.com/codesync/collab/internal/config"
	"github.com/codesync/collab/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the HTTP surface needs besides the orchestrator.
type Deps struct {
	Orch     *orch.Orchestrator
	Signal   *signal.SignalWSController
	Verifier *auth.Verifier
	Members  core.MemberStore
	Feed     core.ActivityFeed
	Activity core.ActivityRecorder
	Executor core.CodeExecutor
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) http.Handler {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("CodeSyncSession", store))

	h := &handlers{deps: deps}

	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/session", h.createSession)
	api.DELETE("/session", h.deleteSession)

	// anonymous sockets are allowed only when verification is disabled
	api.GET("/ws", auth.Middleware(deps.Verifier, deps.Verifier.Enabled()), func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})

	authed := api.Group("", auth.Middleware(deps.Verifier, true))
	authed.GET("/workspaces/:id/presence", h.presence)
	authed.GET("/workspaces/:id/activity", h.activity)
	authed.PATCH("/workspaces/:id/role", h.changeRole)
	authed.POST("/execute", h.execute)

	log.Info().Str("module", "adapters.http").Strs("cors", cfg.CORS.Origins).Msg("router setup")

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.Origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", auth.DevUserHeader},
		AllowCredentials: true,
	}).Handler(r)
}

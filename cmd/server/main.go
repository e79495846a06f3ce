package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codesync/collab/internal/adapters/exec"
	router "github.com/codesync/collab/internal/adapters/http"
	wsignal "github.com/codesync/collab/internal/adapters/signal"
	"github.com/codesync/collab/internal/adapters/store/memory"
	"github.com/codesync/collab/internal/adapters/store/postgres"
	"github.com/codesync/collab/internal/app/activity"
	"github.com/codesync/collab/internal/app/orch"
	"github.com/codesync/collab/internal/auth"
	"github.com/codesync/collab/internal/config"
	"github.com/codesync/collab/internal/core"
)

// stores groups the storage capabilities behind one backend.
type stores interface {
	core.ContentStore
	core.MemberStore
	core.ActivityStore
	core.ActivityFeed
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	var st stores
	if cfg.Database.URL != "" {
		pool, err := postgres.CreateConnectionPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		tables := postgres.NewTableNames(cfg.Database.TablePrefix)
		if cfg.Database.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
				return err
			}
		}
		st = postgres.NewStore(pool, tables)
		log.Info().Str("module", "main").Msg("using postgres store")
	} else {
		st = memory.New()
		log.Warn().Str("module", "main").Msg("no database.url, using in-memory store")
	}

	recorder := activity.NewRecorder(st, activity.Config{
		QueueSize: cfg.Activity.QueueSize,
		Workers:   cfg.Activity.Workers,
		Timeout:   cfg.Activity.Timeout,
	})

	opts := orch.DefaultOptions()
	opts.QuietPeriod = cfg.Document.QuietPeriod
	opts.MaxDeferral = cfg.Document.MaxDeferral
	opts.FlushTimeout = cfg.Document.FlushTimeout
	opts.VersionOnFlush = cfg.Document.VersionOnFlush
	opts.TargetedVoiceRelay = cfg.Voice.TargetedRelay
	if len(cfg.Voice.ICEServers) > 0 {
		opts.ICEServers = []webrtc.ICEServer{{URLs: cfg.Voice.ICEServers}}
	}
	o := orch.New(st, st, recorder, opts)

	recorder.OnStored(o.NotifyActivity)
	recorder.Start()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	if !verifier.Enabled() {
		log.Warn().Str("module", "main").Msg("auth.jwt_secret is empty, sockets announce their own identity")
	}

	ctl := wsignal.NewSignalWSController(o,
		wsignal.NewEventRateLimiter(cfg.Rate.EventsPerSecond, cfg.Rate.Burst),
		wsignal.Settings{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			PongWait:   cfg.PongWait,
			WriteWait:  cfg.WriteWait,
			SendBuffer: cfg.SendBuffer,
		},
	)

	handler := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:     o,
		Signal:   ctl,
		Verifier: verifier,
		Members:  st,
		Feed:     st,
		Activity: recorder,
		Executor: exec.NewRunner(cfg.Exec.Timeout, cfg.Exec.WorkDir),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("CodeSync server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := o.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("pending writes not flushed")
		}
		recorder.Stop()
		return nil
	})
	return g.Wait()
}

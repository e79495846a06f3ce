// Package activity is the fire-and-forget sink for the workspace feed.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Config struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Recorder queues events and appends them from background workers. Record
// never blocks: a full queue drops the event with a warning.
type Recorder struct {
	store    core.ActivityStore
	cfg      Config
	onStored func(domain.WorkspaceID)

	queue   chan domain.ActivityEvent
	wg      conc.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

var _ core.ActivityRecorder = (*Recorder)(nil)

func NewRecorder(store core.ActivityStore, cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Recorder{
		store: store,
		cfg:   cfg,
		queue: make(chan domain.ActivityEvent, cfg.QueueSize),
	}
}

// OnStored registers a callback run after each successful append, used to
// push activity_update to the workspace room. Set before Start.
func (r *Recorder) OnStored(fn func(domain.WorkspaceID)) { r.onStored = fn }

func (r *Recorder) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Go(r.work)
	}
	log.Info().Str("module", "app.activity").Int("workers", r.cfg.Workers).Int("queue", r.cfg.QueueSize).Msg("recorder started")
}

func (r *Recorder) Record(ev domain.ActivityEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		log.Warn().Str("module", "app.activity").Str("action", string(ev.ActionType)).Msg("recorder stopped, event dropped")
		return
	}
	select {
	case r.queue <- ev:
	default:
		log.Warn().Str("module", "app.activity").Str("workspace", string(ev.WorkspaceID)).Str("action", string(ev.ActionType)).Msg("activity queue full, event dropped")
	}
}

func (r *Recorder) work() {
	for ev := range r.queue {
		r.append(ev)
	}
}

func (r *Recorder) append(ev domain.ActivityEvent) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("module", "app.activity").Msg("append panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	if err := r.store.AppendActivity(ctx, ev); err != nil {
		log.Error().Err(err).Str("module", "app.activity").Str("workspace", string(ev.WorkspaceID)).Str("action", string(ev.ActionType)).Msg("append activity")
		return
	}
	if r.onStored != nil {
		r.onStored(ev.WorkspaceID)
	}
}

// Stop drains the queue and waits for the workers.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
	log.Info().Str("module", "app.activity").Msg("recorder stopped")
}

package orch

import (
	"context"
	"sync"
	"time"

	"github.com/codesync/collab/internal/app"
	"github.com/codesync/collab/internal/app/flush"
	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

type Options struct {
	QuietPeriod    time.Duration
	MaxDeferral    time.Duration
	FlushTimeout   time.Duration
	VersionOnFlush bool

	ICEServers         []webrtc.ICEServer
	TargetedVoiceRelay bool
}

func DefaultOptions() Options {
	return Options{
		QuietPeriod:    5 * time.Second,
		MaxDeferral:    30 * time.Second,
		FlushTimeout:   5 * time.Second,
		VersionOnFlush: true,
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Orchestrator is the real-time core. Every state transition runs under mu,
// so handlers behave as if driven by a single event loop; the only
// suspension points are oracle and storage calls, made with mu released.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Oracle   core.MembershipOracle
	Store    core.ContentStore
	Activity core.ActivityRecorder
	Opts     Options

	mu      sync.Mutex
	latest  map[domain.FileID]string
	flusher *flush.Scheduler
	now     func() time.Time
}

func New(
	oracle core.MembershipOracle,
	store core.ContentStore,
	activity core.ActivityRecorder,
	opts Options,
) *Orchestrator {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultOptions().FlushTimeout
	}
	o := &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRoomManager(),
		Policy:   app.SimplePolicy{},
		Oracle:   oracle,
		Store:    store,
		Activity: activity,
		Opts:     opts,
		latest:   make(map[domain.FileID]string),
		now:      time.Now,
	}
	o.flusher = flush.NewScheduler(opts.QuietPeriod, opts.MaxDeferral, o.persist)
	return o
}

// Connect registers a freshly opened channel. It is not in any room yet.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.Bind(core.NewMemberSession(sid, conn), cancel)
}

// Disconnect is immediate cleanup: leave every room, then forget the channel.
// Safe to call after Leave and safe to call twice.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leaveLocked(sid)
	if o.Registry.Alive(sid) {
		o.Registry.Unbind(sid)
	}
}

// Close writes every pending file and waits for in-flight writes.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.flusher.Close(ctx)
}

// NotifyActivity tells a workspace room to re-fetch its activity feed.
func (o *Orchestrator) NotifyActivity(ws domain.WorkspaceID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, ok := o.Rooms.Get(domain.WorkspaceKey(ws))
	if !ok {
		return
	}
	o.broadcast(room, "", protocol.ActivityUpdateMsg{Type: protocol.ActivityUpdate, WorkspaceID: ws})
}

func (o *Orchestrator) record(ev domain.ActivityEvent) {
	if o.Activity == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = o.now()
	}
	o.Activity.Record(ev)
}

func (o *Orchestrator) send(sess core.MemberSession, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.SID())).Msg("unicast dropped")
	}
}

// broadcast must be called with mu held.
func (o *Orchestrator) broadcast(room core.RoomService, from core.SessionID, v any) core.PublishResult {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return core.PublishResult{}
	}
	res := room.Broadcast(from, frame)
	if len(res.Dropped) > 0 {
		o.onDropped(room, res, gjson.GetBytes(frame, "type").String())
	}
	return res
}

func (o *Orchestrator) onDropped(room core.RoomService, res core.PublishResult, frameType string) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow, frameType) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow.SID())).Str("room", room.Key().String()).Str("type", frameType).Msg("kicking slow member")
			// The transport's read loop notices the close and calls Disconnect.
			slow.Signal().Close()
			o.Registry.Cancel(slow.SID())
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("sid", string(slow.SID())).Str("type", frameType).Msg("frame dropped for slow member")
		}
	}
}

// leaveRoom removes sid from key and drops the room once empty.
func (o *Orchestrator) leaveRoom(key domain.RoomKey, sid core.SessionID) (core.RoomService, bool) {
	room, ok := o.Rooms.Get(key)
	if !ok {
		return nil, false
	}
	removed := room.RemoveMember(sid)
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(key)
		if key.Kind == domain.FileRoom {
			delete(o.latest, domain.FileID(key.ID))
		}
	}
	return room, removed
}

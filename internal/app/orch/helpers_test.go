package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codesync/collab/internal/adapters/store/memory"
	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
)

// captureConn records every frame sent to one connection.
type captureConn struct {
	mu     sync.Mutex
	frames []map[string]any
	full   bool
	closed bool
}

func (c *captureConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.full {
		return errors.New("full")
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *captureConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *captureConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ofType returns the frames with the given type discriminator.
func (c *captureConn) ofType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *captureConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *captureConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// recorder collects activity events synchronously.
type recorder struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (r *recorder) Record(ev domain.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofAction(a domain.ActionType) []domain.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ActivityEvent
	for _, ev := range r.events {
		if ev.ActionType == a {
			out = append(out, ev)
		}
	}
	return out
}

// gatedOracle blocks GetRole until release is closed.
type gatedOracle struct {
	core.MembershipOracle
	entered chan struct{}
	release chan struct{}
}

func (g *gatedOracle) GetRole(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (domain.Role, error) {
	close(g.entered)
	<-g.release
	return g.MembershipOracle.GetRole(ctx, ws, user)
}

type fixture struct {
	o     *Orchestrator
	store *memory.Store
	rec   *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := memory.New()
	rec := &recorder{}
	o := New(store, store, rec, opts)
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	return &fixture{o: o, store: store, rec: rec}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.QuietPeriod = time.Hour
	opts.MaxDeferral = 0
	return opts
}

func (f *fixture) member(ws domain.WorkspaceID, user domain.UserID, role domain.Role) {
	_ = f.store.SetRole(context.Background(), ws, user, role)
}

func (f *fixture) connect(sid core.SessionID) *captureConn {
	conn := &captureConn{}
	f.o.Connect(sid, conn, nil)
	return conn
}

// join connects sid and announces ws as user; the caller expects admission.
func (f *fixture) join(t *testing.T, sid core.SessionID, ws domain.WorkspaceID, user domain.UserID) *captureConn {
	t.Helper()
	conn := f.connect(sid)
	d := f.o.AnnounceWorkspace(context.Background(), sid, ws, domain.Identity{UserID: user, Username: string(user)}, "")
	if !d.Accepted() {
		t.Fatalf("%s not admitted: %s", sid, d.Denied)
	}
	return conn
}

func (f *fixture) openFile(t *testing.T, sid core.SessionID, file domain.FileID) {
	t.Helper()
	if d := f.o.AnnounceFile(context.Background(), sid, file); !d.Accepted() {
		t.Fatalf("%s could not open %s: %s", sid, file, d.Denied)
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

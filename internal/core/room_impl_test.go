package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/codesync/collab/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func session(sid string, conn *fakeConn) MemberSession {
	user, _ := domain.NewUser(domain.UserID("u-"+sid), "user "+sid)
	return NewMemberSession(SessionID(sid), conn).UpdateMeta(domain.NewMember(user, "", domain.RoleEditor))
}

func TestBroadcastExcludesSender(t *testing.T) {
	room := NewRoomService(domain.FileKey("f1"))
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	room.AddMember(session("a", a))
	room.AddMember(session("b", b))
	room.AddMember(session("c", c))

	res := room.Broadcast("a", Frame(`{}`))

	if res.SendTo != 2 || len(res.Dropped) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if a.count() != 0 || b.count() != 1 || c.count() != 1 {
		t.Fatalf("counts a=%d b=%d c=%d", a.count(), b.count(), c.count())
	}
}

func TestBroadcastReportsDropped(t *testing.T) {
	room := NewRoomService(domain.WorkspaceKey("w"))
	ok, slow := &fakeConn{}, &fakeConn{full: true}
	room.AddMember(session("ok", ok))
	room.AddMember(session("slow", slow))

	res := room.Broadcast("", Frame(`{}`))

	if res.SendTo != 1 {
		t.Fatalf("sent to %d", res.SendTo)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].SID() != "slow" {
		t.Fatalf("dropped = %v", res.Dropped)
	}
}

func TestMembersSnapshotKeepsJoinOrder(t *testing.T) {
	room := NewRoomService(domain.WorkspaceKey("w"))
	for _, sid := range []string{"c", "a", "b"} {
		room.AddMember(session(sid, &fakeConn{}))
	}
	room.RemoveMember("a")
	room.AddMember(session("a", &fakeConn{}))

	got := room.MembersSnapshot()
	want := []SessionID{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("len = %d", len(got))
	}
	for i, m := range got {
		if m.UserID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, m.UserID, want[i])
		}
		if m.ProfileID != domain.UserID("u-"+string(want[i])) {
			t.Fatalf("profile = %s", m.ProfileID)
		}
	}
}

func TestRemoveMemberIdempotent(t *testing.T) {
	room := NewRoomService(domain.VoiceKey("w"))
	room.AddMember(session("a", &fakeConn{}))

	if !room.RemoveMember("a") {
		t.Fatal("first remove should report removal")
	}
	if room.RemoveMember("a") {
		t.Fatal("second remove should be a no-op")
	}
	if room.MemberCount() != 0 {
		t.Fatalf("count = %d", room.MemberCount())
	}
}

func TestRoomManager(t *testing.T) {
	m := NewRoomManager()
	k := domain.FileKey("f")

	r1 := m.GetOrCreate(k)
	r2 := m.GetOrCreate(k)
	if r1 != r2 {
		t.Fatal("GetOrCreate must return the same room for a key")
	}
	if _, ok := m.Get(domain.FileKey("other")); ok {
		t.Fatal("unexpected room")
	}
	if n := len(m.List()); n != 1 {
		t.Fatalf("list = %d", n)
	}
	m.StopRoom(k)
	if _, ok := m.Get(k); ok {
		t.Fatal("room should be gone")
	}
}

func TestRoomKeysAreScopedByKind(t *testing.T) {
	m := NewRoomManager()
	ws := m.GetOrCreate(domain.WorkspaceKey("x"))
	file := m.GetOrCreate(domain.FileKey("x"))
	if ws == file {
		t.Fatal("workspace and file rooms with the same id must differ")
	}
}

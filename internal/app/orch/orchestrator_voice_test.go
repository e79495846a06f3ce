package orch

import (
	"encoding/json"
	"testing"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
)

func voiceFixture(t *testing.T, opts Options) (*fixture, map[string]*captureConn) {
	t.Helper()
	f := newFixture(t, opts)
	conns := map[string]*captureConn{}
	for _, sid := range []string{"a", "b", "c"} {
		user := domain.UserID("user-" + sid)
		f.member("w1", user, domain.RoleEditor)
		conns[sid] = f.join(t, core.SessionID("s-"+sid), "w1", user)
	}
	return f, conns
}

func TestVoiceJoinAnnouncesParticipant(t *testing.T) {
	f, conns := voiceFixture(t, testOptions())

	if d := f.o.VoiceJoin("s-a", "w1"); !d.Accepted() {
		t.Fatalf("decision = %+v", d)
	}
	if d := f.o.VoiceJoin("s-b", "w1"); !d.Accepted() {
		t.Fatalf("decision = %+v", d)
	}

	joined := conns["a"].ofType(protocol.VoiceUserJoined)
	if len(joined) != 1 || joined[0]["userId"] != "user-b" || joined[0]["socketId"] != "s-b" {
		t.Fatalf("voice_user_joined = %v", joined)
	}
	acks := conns["b"].ofType(protocol.VoiceJoined)
	if len(acks) != 1 {
		t.Fatalf("voice_joined = %d", len(acks))
	}
	if p := acks[0]["participants"].([]any); len(p) != 1 {
		t.Fatalf("participants = %v", p)
	}
	if ice := acks[0]["iceServers"].([]any); len(ice) == 0 {
		t.Fatal("ice servers missing")
	}
	if n := len(conns["c"].ofType(protocol.VoiceUserJoined)); n != 0 {
		t.Fatalf("non-participant notified %d times", n)
	}
}

func TestVoiceRequiresMatchingWorkspace(t *testing.T) {
	f, _ := voiceFixture(t, testOptions())
	if d := f.o.VoiceJoin("s-a", "w2"); d.Denied != DenyWorkspaceMismatch {
		t.Fatalf("decision = %+v", d)
	}
	if d := f.o.VoiceRelay("s-a", protocol.VoiceOffer, "user-b", json.RawMessage(`{}`)); d.Denied != DenyNotInVoice {
		t.Fatalf("relay outside call = %+v", d)
	}
	if d := f.o.VoiceLeave("s-a", "w1"); d.Denied != DenyNotInVoice {
		t.Fatalf("leave outside call = %+v", d)
	}
}

func TestVoiceRelayBroadcastsToCall(t *testing.T) {
	f, conns := voiceFixture(t, testOptions())
	for _, sid := range []string{"s-a", "s-b", "s-c"} {
		f.o.VoiceJoin(core.SessionID(sid), "w1")
	}

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	if d := f.o.VoiceRelay("s-a", protocol.VoiceOffer, "user-b", payload); !d.Accepted() {
		t.Fatalf("decision = %+v", d)
	}

	for _, who := range []string{"b", "c"} {
		got := conns[who].ofType(protocol.VoiceOffer)
		if len(got) != 1 || got[0]["from"] != "user-a" || got[0]["to"] != "user-b" {
			t.Fatalf("%s got %v", who, got)
		}
	}
	if n := len(conns["a"].ofType(protocol.VoiceOffer)); n != 0 {
		t.Fatalf("sender echoed %d", n)
	}
}

func TestVoiceRelayTargeted(t *testing.T) {
	opts := testOptions()
	opts.TargetedVoiceRelay = true
	f, conns := voiceFixture(t, opts)
	for _, sid := range []string{"s-a", "s-b", "s-c"} {
		f.o.VoiceJoin(core.SessionID(sid), "w1")
	}

	f.o.VoiceRelay("s-a", protocol.VoiceICECandidate, "user-b", json.RawMessage(`{"candidate":"x"}`))

	if n := len(conns["b"].ofType(protocol.VoiceICECandidate)); n != 1 {
		t.Fatalf("target got %d", n)
	}
	if n := len(conns["c"].ofType(protocol.VoiceICECandidate)); n != 0 {
		t.Fatalf("bystander got %d", n)
	}
}

func TestDisconnectLeavesCall(t *testing.T) {
	f, conns := voiceFixture(t, testOptions())
	f.o.VoiceJoin("s-a", "w1")
	f.o.VoiceJoin("s-b", "w1")

	f.o.Disconnect("s-b")

	left := conns["a"].ofType(protocol.VoiceUserLeft)
	if len(left) != 1 || left[0]["userId"] != "user-b" {
		t.Fatalf("voice_user_left = %v", left)
	}
}

package signal

import (
	"testing"
	"time"

	"github.com/codesync/collab/internal/protocol"
)

func TestEventRateLimiter(t *testing.T) {
	rl := NewEventRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("event %d within burst rejected", i)
		}
	}
	if rl.Allow("a") {
		t.Fatal("event beyond burst allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("limits must be per connection")
	}
	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("forgotten connection should start with a fresh bucket")
	}
}

func TestEventRateLimiterDisabled(t *testing.T) {
	rl := NewEventRateLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		if !rl.Allow("a") {
			t.Fatal("disabled limiter rejected an event")
		}
	}
}

func TestDecodeValidates(t *testing.T) {
	if _, err := decode[protocol.JoinFileMsg]([]byte(`{"type":"join_file"}`)); err == nil {
		t.Fatal("missing fileId accepted")
	}
	if _, err := decode[protocol.JoinFileMsg]([]byte(`{"type":"join_file","fileId":7}`)); err == nil {
		t.Fatal("wrong field type accepted")
	}
	m, err := decode[protocol.JoinFileMsg]([]byte(`{"type":"join_file","fileId":"f1"}`))
	if err != nil || m.FileID != "f1" {
		t.Fatalf("decode = %+v, %v", m, err)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{PingPeriod: time.Minute, PongWait: 30 * time.Second}.withDefaults()
	if s.PingPeriod >= s.PongWait {
		t.Fatalf("ping period %s must be shorter than pong wait %s", s.PingPeriod, s.PongWait)
	}
	if s.SendBuffer <= 0 || s.ReadLimit <= 0 || s.WriteWait <= 0 {
		t.Fatalf("defaults missing: %+v", s)
	}
}

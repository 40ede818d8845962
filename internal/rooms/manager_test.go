package rooms

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/duocall/duocall/internal/domain/events"
)

// fakeSender records everything the manager writes, per connection.
type fakeSender struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]*events.Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[uuid.UUID][]*events.Message)}
}

func (f *fakeSender) Write(connID uuid.UUID, payload any) {
	msg, ok := payload.(*events.Message)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], msg)
}

func (f *fakeSender) messages(connID uuid.UUID) []*events.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*events.Message, len(f.sent[connID]))
	copy(out, f.sent[connID])
	return out
}

func (f *fakeSender) last(t *testing.T, connID uuid.UUID) *events.Message {
	t.Helper()

	msgs := f.messages(connID)
	if len(msgs) == 0 {
		t.Fatal("no messages delivered")
	}
	return msgs[len(msgs)-1]
}

// startManager runs a reactor with sweeping effectively disabled and
// returns a barrier that waits until all enqueued commands have run.
func startManager(t *testing.T, sender Sender) (*Manager, func()) {
	t.Helper()

	m := NewManager(sender, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go m.Run(ctx)

	barrier := func() {
		t.Helper()

		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer waitCancel()

		if _, err := m.Rooms(waitCtx); err != nil {
			t.Fatalf("barrier: %v", err)
		}
	}

	return m, barrier
}

func decode[T any](t *testing.T, msg *events.Message) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		t.Fatalf("decode %s: %v", msg.Type, err)
	}
	return out
}

func TestManagerJoinSequence(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	alice := participant("alice")
	bob := participant("bob")

	m.Join(alice, "4821")
	barrier()

	msg := sender.last(t, alice.ConnID)
	if msg.Type != events.TypeRoomJoined {
		t.Fatalf("first joiner got %q, want %q", msg.Type, events.TypeRoomJoined)
	}
	joined := decode[events.RoomJoinedEvent](t, msg)
	if joined.Role != events.RoleFirstUser || joined.PeerIdentity != "" {
		t.Fatalf("first joiner event=%+v, want first-user alone", joined)
	}

	m.Join(bob, "4821")
	barrier()

	bobMsgs := sender.messages(bob.ConnID)
	if len(bobMsgs) != 2 {
		t.Fatalf("second joiner got %d messages, want 2", len(bobMsgs))
	}

	joined = decode[events.RoomJoinedEvent](t, bobMsgs[0])
	if joined.Role != events.RoleSecondUser || joined.PeerIdentity != "alice" {
		t.Fatalf("second joiner event=%+v, want second-user with alice", joined)
	}

	if bobMsgs[1].Type != events.TypeRoomReady {
		t.Fatalf("second joiner then got %q, want %q", bobMsgs[1].Type, events.TypeRoomReady)
	}
	ready := decode[events.RoomReadyEvent](t, bobMsgs[1])
	if ready.PeerIdentity != "alice" {
		t.Fatalf("room-ready peer=%q, want alice", ready.PeerIdentity)
	}

	msg = sender.last(t, alice.ConnID)
	if msg.Type != events.TypePeerJoined {
		t.Fatalf("first joiner got %q, want %q", msg.Type, events.TypePeerJoined)
	}
	peer := decode[events.PeerJoinedEvent](t, msg)
	if peer.PeerIdentity != "bob" {
		t.Fatalf("peer-joined peer=%q, want bob", peer.PeerIdentity)
	}
}

func TestManagerRejectsThirdJoiner(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	carol := participant("carol")

	m.Join(participant("alice"), "4821")
	m.Join(participant("bob"), "4821")
	m.Join(carol, "4821")
	barrier()

	msg := sender.last(t, carol.ConnID)
	if msg.Type != events.TypeError {
		t.Fatalf("third joiner got %q, want %q", msg.Type, events.TypeError)
	}
	errEvent := decode[events.ErrorEvent](t, msg)
	if !strings.Contains(errEvent.Message, "full") {
		t.Fatalf("error message=%q, want a room-full message", errEvent.Message)
	}
}

func TestManagerRejectsInvalidRoomCode(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	alice := participant("alice")

	m.Join(alice, "no-digits")
	barrier()

	msg := sender.last(t, alice.ConnID)
	if msg.Type != events.TypeError {
		t.Fatalf("joiner got %q, want %q", msg.Type, events.TypeError)
	}
}

func TestManagerRelaysWithSenderIdentity(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	alice := participant("alice")
	bob := participant("bob")

	m.Join(alice, "4821")
	m.Join(bob, "4821")

	payload := json.RawMessage(`"v=0 fake sdp"`)
	m.Relay(alice.ConnID, "4821", events.TypeOffer, payload)
	barrier()

	msg := sender.last(t, bob.ConnID)
	if msg.Type != events.TypeOffer {
		t.Fatalf("relayed type=%q, want %q", msg.Type, events.TypeOffer)
	}

	relay := decode[events.RelayEvent](t, msg)
	if relay.FromIdentity != "alice" {
		t.Fatalf("fromIdentity=%q, want alice", relay.FromIdentity)
	}
	if string(relay.Payload) != string(payload) {
		t.Fatalf("payload=%s, want %s untouched", relay.Payload, payload)
	}
}

func TestManagerDropsRelayWithoutPeer(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	alice := participant("alice")
	m.Join(alice, "4821")
	barrier()

	before := len(sender.messages(alice.ConnID))

	m.Relay(alice.ConnID, "4821", events.TypeCandidate, json.RawMessage(`{}`))
	barrier()

	if got := len(sender.messages(alice.ConnID)); got != before {
		t.Fatalf("lonely relay delivered %d extra messages", got-before)
	}
}

func TestManagerLeaveNotifiesRemainingPeer(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	alice := participant("alice")
	bob := participant("bob")

	m.Join(alice, "4821")
	m.Join(bob, "4821")

	m.Leave(bob.ConnID)
	barrier()

	msg := sender.last(t, alice.ConnID)
	if msg.Type != events.TypePeerLeft {
		t.Fatalf("remaining peer got %q, want %q", msg.Type, events.TypePeerLeft)
	}
	left := decode[events.PeerLeftEvent](t, msg)
	if left.PeerIdentity != "bob" {
		t.Fatalf("peer-left identity=%q, want bob", left.PeerIdentity)
	}

	m.Leave(alice.ConnID)
	barrier()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	infos, err := m.Rooms(waitCtx)
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("rooms=%d after everyone left, want 0", len(infos))
	}
}

func TestManagerDisconnectActsAsLeave(t *testing.T) {
	sender := newFakeSender()
	m, barrier := startManager(t, sender)

	alice := participant("alice")
	bob := participant("bob")

	m.Join(alice, "4821")
	m.Join(bob, "4821")

	m.Disconnect(alice.ConnID)
	barrier()

	msg := sender.last(t, bob.ConnID)
	if msg.Type != events.TypePeerLeft {
		t.Fatalf("remaining peer got %q, want %q", msg.Type, events.TypePeerLeft)
	}
}

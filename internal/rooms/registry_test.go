package rooms

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/duocall/duocall/internal/domain/events"
)

func participant(name string) Participant {
	return Participant{ConnID: uuid.New(), Identity: name}
}

func TestAdmitAssignsRolesInOrder(t *testing.T) {
	r := NewRegistry()

	alice := participant("alice")
	bob := participant("bob")

	role, other, err := r.Admit(alice, "4821")
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if role != events.RoleFirstUser {
		t.Fatalf("first role=%q, want %q", role, events.RoleFirstUser)
	}
	if other != nil {
		t.Fatalf("first admit counterpart=%v, want nil", other)
	}

	role, other, err = r.Admit(bob, "4821")
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if role != events.RoleSecondUser {
		t.Fatalf("second role=%q, want %q", role, events.RoleSecondUser)
	}
	if other == nil || other.Identity != "alice" {
		t.Fatalf("second admit counterpart=%v, want alice", other)
	}
}

func TestAdmitRejectsInvalidCodes(t *testing.T) {
	codes := []string{"", "123", "12345", "abcd", "12a4", " 1234", "1234 ", "12.4"}

	r := NewRegistry()

	for _, code := range codes {
		_, _, err := r.Admit(participant("alice"), code)
		if !errors.Is(err, ErrInvalidRoomCode) {
			t.Errorf("Admit(%q) err=%v, want ErrInvalidRoomCode", code, err)
		}
	}

	if r.Len() != 0 {
		t.Fatalf("rooms=%d after rejected admits, want 0", r.Len())
	}
}

func TestAdmitRejectsThirdMember(t *testing.T) {
	r := NewRegistry()

	r.Admit(participant("alice"), "4821")
	r.Admit(participant("bob"), "4821")

	_, _, err := r.Admit(participant("carol"), "4821")
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("third admit err=%v, want ErrRoomFull", err)
	}

	infos := r.Snapshot()
	if len(infos) != 1 || infos[0].MemberCount != 2 {
		t.Fatalf("snapshot=%+v, want one room with 2 members", infos)
	}
}

func TestAdmitRejectsDoubleJoin(t *testing.T) {
	r := NewRegistry()

	alice := participant("alice")
	if _, _, err := r.Admit(alice, "4821"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if _, _, err := r.Admit(alice, "9999"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("rejoin err=%v, want ErrAlreadyJoined", err)
	}
}

func TestRemoveReportsRemainingMember(t *testing.T) {
	r := NewRegistry()

	alice := participant("alice")
	bob := participant("bob")
	r.Admit(alice, "4821")
	r.Admit(bob, "4821")

	leaver, remaining, ok := r.Remove(bob.ConnID)
	if !ok {
		t.Fatal("Remove reported not a member")
	}
	if leaver.Identity != "bob" {
		t.Fatalf("leaver=%q, want bob", leaver.Identity)
	}
	if remaining == nil || remaining.Identity != "alice" {
		t.Fatalf("remaining=%v, want alice", remaining)
	}

	if r.Len() != 1 {
		t.Fatalf("rooms=%d, want 1", r.Len())
	}
}

func TestRemoveLastMemberDeletesRoom(t *testing.T) {
	r := NewRegistry()

	alice := participant("alice")
	r.Admit(alice, "4821")

	_, remaining, ok := r.Remove(alice.ConnID)
	if !ok {
		t.Fatal("Remove reported not a member")
	}
	if remaining != nil {
		t.Fatalf("remaining=%v, want nil", remaining)
	}
	if r.Len() != 0 {
		t.Fatalf("rooms=%d after last member left, want 0", r.Len())
	}

	if _, joined := r.RoomCodeOf(alice.ConnID); joined {
		t.Fatal("connection still mapped to a room after removal")
	}
}

func TestRemoveUnknownConnection(t *testing.T) {
	r := NewRegistry()

	if _, _, ok := r.Remove(uuid.New()); ok {
		t.Fatal("Remove of unknown connection reported ok")
	}
}

func TestRelayPair(t *testing.T) {
	r := NewRegistry()

	alice := participant("alice")
	bob := participant("bob")
	r.Admit(alice, "4821")
	r.Admit(bob, "4821")

	from, to, ok := r.RelayPair("4821", alice.ConnID)
	if !ok {
		t.Fatal("RelayPair reported no target")
	}
	if from.Identity != "alice" || to.Identity != "bob" {
		t.Fatalf("from=%q to=%q, want alice to bob", from.Identity, to.Identity)
	}

	if _, _, ok := r.RelayPair("4821", uuid.New()); ok {
		t.Fatal("RelayPair accepted a non-member sender")
	}

	if _, _, ok := r.RelayPair("0000", alice.ConnID); ok {
		t.Fatal("RelayPair accepted an unknown room")
	}
}

func TestRelayPairWithoutCounterpart(t *testing.T) {
	r := NewRegistry()

	alice := participant("alice")
	r.Admit(alice, "4821")

	if _, _, ok := r.RelayPair("4821", alice.ConnID); ok {
		t.Fatal("RelayPair reported a target in a single-member room")
	}
}

func TestSweepReapsOnlyOldEmptyRooms(t *testing.T) {
	now := time.Now()

	r := NewRegistry()
	r.now = func() time.Time { return now }

	// Empty rooms do not survive the normal leave path, so seed them
	// directly the way a sweep would find them.
	r.rooms["1111"] = &Room{Code: "1111", CreatedAt: now.Add(-time.Hour)}
	r.rooms["2222"] = &Room{Code: "2222", CreatedAt: now.Add(-time.Minute)}

	alice := participant("alice")
	r.Admit(alice, "3333")
	r.rooms["3333"].CreatedAt = now.Add(-time.Hour)

	reaped := r.Sweep(30 * time.Minute)
	if len(reaped) != 1 || reaped[0] != "1111" {
		t.Fatalf("reaped=%v, want [1111]", reaped)
	}

	if _, exists := r.rooms["2222"]; !exists {
		t.Fatal("young empty room was swept")
	}
	if _, exists := r.rooms["3333"]; !exists {
		t.Fatal("occupied room was swept")
	}
}

func TestSnapshotListsMemberIdentities(t *testing.T) {
	r := NewRegistry()

	r.Admit(participant("alice"), "4821")
	r.Admit(participant("bob"), "4821")

	infos := r.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("snapshot len=%d, want 1", len(infos))
	}

	info := infos[0]
	if info.Code != "4821" || info.MemberCount != 2 {
		t.Fatalf("info=%+v, want room 4821 with 2 members", info)
	}
	if len(info.Members) != 2 || info.Members[0] != "alice" || info.Members[1] != "bob" {
		t.Fatalf("members=%v, want [alice bob]", info.Members)
	}
}

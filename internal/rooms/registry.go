package rooms

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/duocall/duocall/internal/domain/events"
)

var (
	ErrInvalidRoomCode = errors.New("room code must be exactly 4 digits")
	ErrRoomFull        = errors.New("room is full, two participants max")
	ErrAlreadyJoined   = errors.New("already in a room")
)

// Participant is one verified connection admitted to a room.
type Participant struct {
	ConnID uuid.UUID
	// Identity is the verified display name supplied by the identity gate.
	Identity string
}

// Room pairs at most two participants. Members keeps insertion order:
// the first member is the offer initiator.
type Room struct {
	Code      string
	Members   []Participant
	CreatedAt time.Time
}

// RoomInfo is the read-only diagnostic view of a room.
type RoomInfo struct {
	Code        string    `json:"roomCode"`
	MemberCount int       `json:"memberCount"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Registry holds all active rooms. It is owned by the Manager's reactor
// goroutine and must never be touched from anywhere else, which is why
// it carries no lock.
type Registry struct {
	rooms  map[string]*Room
	byConn map[uuid.UUID]string

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		byConn: make(map[uuid.UUID]string),
		now:    time.Now,
	}
}

// Admit registers p as a member of the room identified by code, creating
// the room when it does not exist yet. It returns the assigned role and
// the counterpart already present, if any.
func (r *Registry) Admit(p Participant, code string) (events.Role, *Participant, error) {
	if !events.ValidRoomCode(code) {
		return "", nil, ErrInvalidRoomCode
	}

	if _, joined := r.byConn[p.ConnID]; joined {
		return "", nil, ErrAlreadyJoined
	}

	room, exists := r.rooms[code]
	if !exists {
		room = &Room{Code: code, CreatedAt: r.now()}
		r.rooms[code] = room
	}

	if len(room.Members) >= 2 {
		return "", nil, ErrRoomFull
	}

	room.Members = append(room.Members, p)
	r.byConn[p.ConnID] = code

	if len(room.Members) == 1 {
		return events.RoleFirstUser, nil, nil
	}

	other := room.Members[0]
	return events.RoleSecondUser, &other, nil
}

// RelayPair resolves the sender and the single relay target for a
// message sent by connID in the room identified by code. ok is false
// when the sender is not a member or has no counterpart.
func (r *Registry) RelayPair(code string, connID uuid.UUID) (from, to Participant, ok bool) {
	room, exists := r.rooms[code]
	if !exists {
		return Participant{}, Participant{}, false
	}

	var foundSender bool
	for _, m := range room.Members {
		if m.ConnID == connID {
			from = m
			foundSender = true
		} else {
			to = m
			ok = true
		}
	}

	if !foundSender {
		return Participant{}, Participant{}, false
	}

	return from, to, ok
}

// Remove takes connID out of whatever room it is in. It returns the
// leaver, the remaining member if one is left behind, and whether the
// connection was a member at all. A room that reaches zero members is
// deleted immediately.
func (r *Registry) Remove(connID uuid.UUID) (leaver Participant, remaining *Participant, ok bool) {
	code, joined := r.byConn[connID]
	if !joined {
		return Participant{}, nil, false
	}

	delete(r.byConn, connID)

	room, exists := r.rooms[code]
	if !exists {
		return Participant{}, nil, false
	}

	members := room.Members[:0]
	for _, m := range room.Members {
		if m.ConnID == connID {
			leaver = m
			ok = true
			continue
		}
		members = append(members, m)
	}
	room.Members = members

	if len(room.Members) == 0 {
		delete(r.rooms, code)
		return leaver, nil, ok
	}

	remaining = &room.Members[0]
	return leaver, remaining, ok
}

// RoomCodeOf returns the room code connID is currently a member of.
func (r *Registry) RoomCodeOf(connID uuid.UUID) (string, bool) {
	code, ok := r.byConn[connID]
	return code, ok
}

// Sweep deletes rooms that have no members and are older than retention.
// Rooms with members are never swept regardless of age. It returns the
// codes of the removed rooms.
func (r *Registry) Sweep(retention time.Duration) []string {
	cutoff := r.now().Add(-retention)

	var reaped []string
	for code, room := range r.rooms {
		if len(room.Members) == 0 && room.CreatedAt.Before(cutoff) {
			delete(r.rooms, code)
			reaped = append(reaped, code)
		}
	}

	return reaped
}

// Snapshot returns the diagnostic view of every active room.
func (r *Registry) Snapshot() []RoomInfo {
	infos := make([]RoomInfo, 0, len(r.rooms))

	for _, room := range r.rooms {
		info := RoomInfo{
			Code:        room.Code,
			MemberCount: len(room.Members),
			Members:     make([]string, 0, len(room.Members)),
			CreatedAt:   room.CreatedAt,
		}
		for _, m := range room.Members {
			info.Members = append(info.Members, m.Identity)
		}
		infos = append(infos, info)
	}

	return infos
}

// Len returns the number of active rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

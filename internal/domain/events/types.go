package events

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Message is the envelope for every signaling message in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"

	TypeRoomJoined = "room-joined"
	TypePeerJoined = "peer-joined"
	TypeRoomReady  = "room-ready"
	TypePeerLeft   = "peer-left"

	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"

	TypeError = "error"
)

// Role is fixed at admission time and determines who initiates the offer.
type Role string

const (
	RoleFirstUser  Role = "first-user"
	RoleSecondUser Role = "second-user"
)

type JoinRoomEvent struct {
	RoomCode string `json:"roomCode"`
}

type LeaveRoomEvent struct {
	RoomCode string `json:"roomCode"`
}

type RoomJoinedEvent struct {
	RoomCode string `json:"roomCode"`
	Role     Role   `json:"role"`
	// PeerIdentity is absent when the joiner is alone in the room.
	PeerIdentity string `json:"peerIdentity,omitempty"`
}

type PeerJoinedEvent struct {
	PeerIdentity string `json:"peerIdentity"`
}

type RoomReadyEvent struct {
	PeerIdentity string `json:"peerIdentity"`
}

type PeerLeftEvent struct {
	PeerIdentity string `json:"peerIdentity,omitempty"`
}

// SDPEvent carries an offer or answer from a client. The payload is an
// opaque blob: the server relays it without interpretation.
type SDPEvent struct {
	RoomCode   string          `json:"roomCode"`
	SDPPayload json.RawMessage `json:"sdpPayload"`
}

type CandidateEvent struct {
	RoomCode         string          `json:"roomCode"`
	CandidatePayload json.RawMessage `json:"candidatePayload"`
}

// RelayEvent is the server-to-client form of offer, answer and candidate
// messages, tagged with the sender's identity.
type RelayEvent struct {
	Payload      json.RawMessage `json:"payload"`
	FromIdentity string          `json:"fromIdentity"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

var roomCodePattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidRoomCode reports whether code satisfies the room-code contract:
// exactly 4 decimal digits.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// NewMessage wraps an event into an envelope of the given type.
func NewMessage(msgType string, event any) (*Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", msgType, err)
	}

	return &Message{Type: msgType, Data: data}, nil
}

package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duocall/duocall/internal/application/constant"
	"github.com/duocall/duocall/internal/application/metric"
	"github.com/duocall/duocall/internal/domain/events"
)

// Sender delivers a signaling message to one connection. Delivery is
// fire-and-forget: if the connection is already gone the message is
// silently dropped.
type Sender interface {
	Write(connID uuid.UUID, payload any)
}

// Manager owns the room registry and serializes every mutation on a
// single reactor goroutine. Public methods enqueue work for the reactor
// and never block on delivery.
type Manager struct {
	registry *Registry
	sender   Sender

	sweepInterval time.Duration
	retention     time.Duration

	commands chan func()
}

func NewManager(sender Sender, sweepInterval, retention time.Duration) *Manager {
	return &Manager{
		registry:      NewRegistry(),
		sender:        sender,
		sweepInterval: sweepInterval,
		retention:     retention,
		commands:      make(chan func(), 256),
	}
}

// Run executes the reactor loop until ctx is cancelled. Every admission,
// relay, leave and sweep happens here, so the registry needs no locking.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.commands:
			fn()
		case <-ticker.C:
			m.sweep()
		}
	}
}

// Join admits p into the room identified by code. Admission failures are
// reported back to the joining connection only.
func (m *Manager) Join(p Participant, code string) {
	m.enqueue(func() { m.join(p, code) })
}

// Relay forwards an opaque payload from connID to the other member of
// the room. kind must be one of the negotiation message types.
func (m *Manager) Relay(connID uuid.UUID, code, kind string, payload json.RawMessage) {
	m.enqueue(func() { m.relay(connID, code, kind, payload) })
}

// Leave removes connID from the room it is a member of.
func (m *Manager) Leave(connID uuid.UUID) {
	m.enqueue(func() { m.leave(connID) })
}

// Disconnect is the implicit leave on connection loss.
func (m *Manager) Disconnect(connID uuid.UUID) {
	m.enqueue(func() { m.leave(connID) })
}

// Rooms returns the diagnostic snapshot of all active rooms.
func (m *Manager) Rooms(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)

	select {
	case m.commands <- func() { reply <- m.registry.Snapshot() }:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case infos := <-reply:
		return infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) enqueue(fn func()) {
	select {
	case m.commands <- fn:
	default:
		// The reactor is saturated. Dropping is preferable to blocking
		// a connection read loop.
		slog.Warn("room manager command queue full, dropping event")
	}
}

func (m *Manager) join(p Participant, code string) {
	role, other, err := m.registry.Admit(p, code)
	if err != nil {
		metric.IncRoomJoin("rejected")
		m.writeError(p.ConnID, err)
		return
	}

	metric.IncRoomJoin("accepted")
	metric.SetActiveRooms(m.registry.Len())

	joined := events.RoomJoinedEvent{RoomCode: code, Role: role}
	if other != nil {
		joined.PeerIdentity = other.Identity
	}
	m.write(p.ConnID, events.TypeRoomJoined, joined)

	slog.Info(
		"participant joined room",
		slog.String(constant.RoomCode, code),
		slog.String(constant.ConnID, p.ConnID.String()),
		slog.String("role", string(role)),
	)

	// Second admission: tell both sides to begin negotiation, each
	// message carrying the counterpart's identity.
	if other != nil {
		m.write(other.ConnID, events.TypePeerJoined, events.PeerJoinedEvent{PeerIdentity: p.Identity})
		m.write(p.ConnID, events.TypeRoomReady, events.RoomReadyEvent{PeerIdentity: other.Identity})
	}
}

func (m *Manager) relay(connID uuid.UUID, code, kind string, payload json.RawMessage) {
	from, to, ok := m.registry.RelayPair(code, connID)
	if !ok {
		// Expected race: the peer may already have left.
		slog.Info(
			"relay target missing, dropping message",
			slog.String(constant.RoomCode, code),
			slog.String(constant.Kind, kind),
		)
		return
	}

	metric.IncRelayedMessage(kind)

	m.write(to.ConnID, kind, events.RelayEvent{
		Payload:      payload,
		FromIdentity: from.Identity,
	})
}

func (m *Manager) leave(connID uuid.UUID) {
	leaver, remaining, ok := m.registry.Remove(connID)
	if !ok {
		return
	}

	metric.SetActiveRooms(m.registry.Len())

	slog.Info(
		"participant left room",
		slog.String(constant.ConnID, connID.String()),
	)

	if remaining != nil {
		m.write(remaining.ConnID, events.TypePeerLeft, events.PeerLeftEvent{PeerIdentity: leaver.Identity})
	}
}

func (m *Manager) sweep() {
	reaped := m.registry.Sweep(m.retention)
	if len(reaped) == 0 {
		return
	}

	metric.AddReapedRooms(len(reaped))
	metric.SetActiveRooms(m.registry.Len())

	for _, code := range reaped {
		slog.Info("reaped idle room", slog.String(constant.RoomCode, code))
	}
}

func (m *Manager) write(connID uuid.UUID, msgType string, event any) {
	msg, err := events.NewMessage(msgType, event)
	if err != nil {
		slog.Error("build signaling message", slog.Any(constant.Error, err))
		return
	}

	m.sender.Write(connID, msg)
}

func (m *Manager) writeError(connID uuid.UUID, err error) {
	var message string
	switch {
	case errors.Is(err, ErrInvalidRoomCode):
		message = ErrInvalidRoomCode.Error()
	case errors.Is(err, ErrRoomFull):
		message = ErrRoomFull.Error()
	case errors.Is(err, ErrAlreadyJoined):
		message = ErrAlreadyJoined.Error()
	default:
		message = "join failed"
	}

	m.write(connID, events.TypeError, events.ErrorEvent{Message: message})
}

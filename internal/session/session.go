package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duocall/duocall/internal/application/constant"
	"github.com/duocall/duocall/internal/domain/events"
)

const (
	defaultNegotiationTimeout = 30 * time.Second
	pendingCandidateLimit     = 64
)

// Signaler delivers signaling messages to and from the server. Incoming
// is closed when the connection drops.
type Signaler interface {
	Send(msg *events.Message) error
	Incoming() <-chan *events.Message
}

type internalKind int

const (
	kindLocalCandidate internalKind = iota
	kindConnState
)

// internalEvent carries transport callbacks into the session loop. The
// generation stamp lets the loop ignore callbacks from a transport that
// was already replaced by a retry.
type internalEvent struct {
	kind      internalKind
	gen       int
	candidate json.RawMessage
	connState ConnState
}

// Session drives one call attempt from media acquisition to hangup. All
// transitions happen on the Run goroutine; State and Hangup are safe to
// call from anywhere.
type Session struct {
	signaler Signaler
	acquirer Acquirer
	factory  Factory

	negotiationTimeout time.Duration

	mu    sync.Mutex
	state State

	roomCode     string
	role         events.Role
	peerIdentity string

	capture   Capture
	transport Transport
	gen       int

	remoteSet bool
	pending   *candidateQueue
	retried   bool
	joined    bool

	timer *time.Timer

	internal chan internalEvent
	hangup   chan struct{}
}

// NewSession wires a session to its collaborators. A zero timeout means
// the default of 30 seconds.
func NewSession(signaler Signaler, acquirer Acquirer, factory Factory, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = defaultNegotiationTimeout
	}

	return &Session{
		signaler:           signaler,
		acquirer:           acquirer,
		factory:            factory,
		negotiationTimeout: timeout,
		state:              StateIdle,
		pending:            newCandidateQueue(pendingCandidateLimit),
		internal:           make(chan internalEvent, 16),
		hangup:             make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Hangup requests an orderly local teardown. It never blocks and extra
// calls are no-ops.
func (s *Session) Hangup() {
	select {
	case s.hangup <- struct{}{}:
	default:
	}
}

// Run executes the session until the call ends. It returns nil on a
// clean close (local hangup or peer departure) and a sentinel-wrapped
// error otherwise. The session is single-use.
func (s *Session) Run(ctx context.Context, roomCode string) error {
	if s.State() != StateIdle {
		return fmt.Errorf("session already used")
	}

	if !events.ValidRoomCode(roomCode) {
		return fmt.Errorf("%w: %q", ErrInvalidInput, roomCode)
	}

	s.roomCode = roomCode

	s.setState(StateAcquiringMedia)

	capture, err := s.acquirer.Acquire(ctx)
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	s.capture = capture

	s.setState(StateJoining)

	if err = s.send(events.TypeJoinRoom, events.JoinRoomEvent{RoomCode: roomCode}); err != nil {
		s.teardown()
		s.setState(StateFailed)

		return fmt.Errorf("%w: %w", ErrSignalingClosed, err)
	}

	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			s.setState(StateClosed)

			return ctx.Err()

		case <-s.hangup:
			s.teardown()
			s.setState(StateClosed)

			return nil

		case msg, ok := <-s.signaler.Incoming():
			if !ok {
				s.teardown()
				s.setState(StateFailed)

				return ErrSignalingClosed
			}

			done, err := s.handleSignal(msg)
			if done || err != nil {
				return err
			}

		case ev := <-s.internal:
			if ev.gen != s.gen {
				continue
			}

			done, err := s.handleInternal(ev)
			if done || err != nil {
				return err
			}

		case <-s.timerC():
			done, err := s.handleTimeout()
			if done || err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleSignal(msg *events.Message) (bool, error) {
	switch msg.Type {
	case events.TypeRoomJoined:
		var event events.RoomJoinedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return false, s.fail(fmt.Errorf("decode room-joined: %w", err))
		}

		s.role = event.Role
		s.peerIdentity = event.PeerIdentity
		s.joined = true

		slog.Info("joined room",
			slog.String(constant.RoomCode, s.roomCode),
			slog.String("role", string(event.Role)),
		)

		if s.role == events.RoleFirstUser {
			s.setState(StateWaitingForPeer)
		}

		return false, nil

	case events.TypePeerJoined:
		var event events.PeerJoinedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return false, s.fail(fmt.Errorf("decode peer-joined: %w", err))
		}

		s.peerIdentity = event.PeerIdentity

		return false, s.startNegotiation(true)

	case events.TypeRoomReady:
		var event events.RoomReadyEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return false, s.fail(fmt.Errorf("decode room-ready: %w", err))
		}

		if event.PeerIdentity != "" {
			s.peerIdentity = event.PeerIdentity
		}

		return false, s.startNegotiation(false)

	case events.TypeOffer:
		return false, s.handleRemoteOffer(msg.Data)

	case events.TypeAnswer:
		return false, s.handleRemoteAnswer(msg.Data)

	case events.TypeCandidate:
		s.handleRemoteCandidate(msg.Data)
		return false, nil

	case events.TypePeerLeft:
		slog.Info("peer left", slog.String(constant.RoomCode, s.roomCode))
		s.teardown()
		s.setState(StateClosed)

		return true, nil

	case events.TypeError:
		var event events.ErrorEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			event.Message = string(msg.Data)
		}

		if s.State() == StateJoining {
			s.teardown()
			s.setState(StateFailed)

			return false, fmt.Errorf("%w: %s", ErrJoinRejected, event.Message)
		}

		slog.Warn("server error", slog.String("message", event.Message))

		return false, nil

	default:
		slog.Warn("unexpected signaling message", slog.String(constant.Kind, msg.Type))
		return false, nil
	}
}

func (s *Session) handleInternal(ev internalEvent) (bool, error) {
	switch ev.kind {
	case kindLocalCandidate:
		err := s.send(events.TypeCandidate, events.CandidateEvent{
			RoomCode:         s.roomCode,
			CandidatePayload: ev.candidate,
		})
		if err != nil {
			slog.Warn("send local candidate", slog.Any(constant.Error, err))
		}

		return false, nil

	case kindConnState:
		switch ev.connState {
		case ConnStateConnected:
			s.stopTimer()
			s.setState(StateConnected)

		case ConnStateDisconnected:
			slog.Warn("transport disconnected", slog.String(constant.RoomCode, s.roomCode))

		case ConnStateFailed, ConnStateClosed:
			s.teardown()
			s.setState(StateClosed)

			return false, ErrTransportFailed
		}

		return false, nil

	default:
		return false, nil
	}
}

// handleTimeout fires when negotiation has not reached connectivity in
// time. The first expiry tears the transport down and retries once with
// a fresh offer; the second is terminal.
func (s *Session) handleTimeout() (bool, error) {
	if s.retried {
		s.teardown()
		s.setState(StateFailed)

		return false, ErrNegotiationTimeout
	}

	s.retried = true

	slog.Warn("negotiation timed out, retrying", slog.String(constant.RoomCode, s.roomCode))

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			slog.Warn("close stale transport", slog.Any(constant.Error, err))
		}

		s.transport = nil
	}

	s.gen++
	s.remoteSet = false
	s.pending.Reset()

	return false, s.startNegotiation(true)
}

// startNegotiation creates a transport instance and, when initiating,
// sends the offer. Both roles initiate on retry.
func (s *Session) startNegotiation(initiate bool) error {
	gen := s.gen

	transport, err := s.factory.NewTransport(s.capture,
		func(candidate json.RawMessage) {
			s.post(internalEvent{kind: kindLocalCandidate, gen: gen, candidate: candidate})
		},
		func(state ConnState) {
			s.post(internalEvent{kind: kindConnState, gen: gen, connState: state})
		},
	)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrTransportFailed, err))
	}

	s.transport = transport

	if initiate {
		sdp, err := transport.CreateOffer()
		if err != nil {
			return s.fail(fmt.Errorf("%w: %w", ErrTransportFailed, err))
		}

		if err = s.sendSDP(events.TypeOffer, sdp); err != nil {
			return s.fail(err)
		}
	}

	s.setState(StateNegotiating)
	s.armTimer()

	return nil
}

func (s *Session) handleRemoteOffer(data json.RawMessage) error {
	sdp, err := relayedSDP(data)
	if err != nil {
		return s.fail(err)
	}

	if s.transport == nil {
		slog.Warn("offer before transport is ready, dropping")
		return nil
	}

	answer, err := s.transport.HandleOffer(sdp)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrTransportFailed, err))
	}

	s.remoteSet = true
	s.applyPending()

	return s.sendSDP(events.TypeAnswer, answer)
}

func (s *Session) handleRemoteAnswer(data json.RawMessage) error {
	sdp, err := relayedSDP(data)
	if err != nil {
		return s.fail(err)
	}

	if s.transport == nil {
		slog.Warn("answer before transport is ready, dropping")
		return nil
	}

	if err = s.transport.HandleAnswer(sdp); err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrTransportFailed, err))
	}

	s.remoteSet = true
	s.applyPending()

	return nil
}

func (s *Session) handleRemoteCandidate(data json.RawMessage) {
	var relay events.RelayEvent
	if err := json.Unmarshal(data, &relay); err != nil {
		slog.Warn("decode candidate", slog.Any(constant.Error, err))
		return
	}

	if s.transport != nil && s.remoteSet {
		if err := s.transport.AddCandidate(relay.Payload); err != nil {
			slog.Warn("apply candidate", slog.Any(constant.Error, err))
		}

		return
	}

	if !s.pending.Push(relay.Payload) {
		slog.Warn("candidate buffer full, dropping",
			slog.String(constant.RoomCode, s.roomCode),
		)
	}
}

// applyPending flushes buffered candidates in arrival order. Individual
// failures are logged and skipped.
func (s *Session) applyPending() {
	for _, candidate := range s.pending.Drain() {
		if err := s.transport.AddCandidate(candidate); err != nil {
			slog.Warn("apply buffered candidate", slog.Any(constant.Error, err))
		}
	}
}

func (s *Session) sendSDP(msgType string, sdp string) error {
	payload, err := json.Marshal(sdp)
	if err != nil {
		return s.fail(fmt.Errorf("marshal sdp: %w", err))
	}

	err = s.send(msgType, events.SDPEvent{
		RoomCode:   s.roomCode,
		SDPPayload: payload,
	})
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrSignalingClosed, err))
	}

	return nil
}

func (s *Session) send(msgType string, event any) error {
	msg, err := events.NewMessage(msgType, event)
	if err != nil {
		return err
	}

	return s.signaler.Send(msg)
}

// fail tears the session down and returns err for the loop to surface.
func (s *Session) fail(err error) error {
	s.teardown()
	s.setState(StateFailed)

	return err
}

// teardown releases everything the session owns. It is safe to call on
// any exit path, including more than once.
func (s *Session) teardown() {
	s.stopTimer()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			slog.Warn("close transport", slog.Any(constant.Error, err))
		}

		s.transport = nil
	}

	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			slog.Warn("release capture", slog.Any(constant.Error, err))
		}

		s.capture = nil
	}

	if s.joined {
		s.joined = false

		if err := s.send(events.TypeLeaveRoom, events.LeaveRoomEvent{RoomCode: s.roomCode}); err != nil {
			slog.Debug("send leave-room", slog.Any(constant.Error, err))
		}
	}
}

func (s *Session) post(ev internalEvent) {
	select {
	case s.internal <- ev:
	default:
		slog.Warn("session event queue full, dropping transport event")
	}
}

func (s *Session) armTimer() {
	s.stopTimer()
	s.timer = time.NewTimer(s.negotiationTimeout)
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) timerC() <-chan time.Time {
	if s.timer == nil {
		return nil
	}

	return s.timer.C
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		slog.Debug("session state change",
			slog.String("from", prev.String()),
			slog.String("to", state.String()),
		)
	}
}

// relayedSDP unwraps the relayed envelope and decodes the opaque SDP
// payload back into its string form.
func relayedSDP(data json.RawMessage) (string, error) {
	var relay events.RelayEvent
	if err := json.Unmarshal(data, &relay); err != nil {
		return "", fmt.Errorf("decode relay envelope: %w", err)
	}

	var sdp string
	if err := json.Unmarshal(relay.Payload, &sdp); err != nil {
		return "", fmt.Errorf("decode sdp payload: %w", err)
	}

	return sdp, nil
}

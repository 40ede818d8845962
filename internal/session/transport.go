package session

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/duocall/duocall/internal/application/constant"
)

// ConnState is the connectivity state reported by a transport.
type ConnState int

const (
	ConnStateNew ConnState = iota
	ConnStateConnected
	ConnStateDisconnected
	ConnStateFailed
	ConnStateClosed
)

// Transport is one instance of the underlying peer-to-peer transport.
// A session owns at most one live instance at a time.
type Transport interface {
	// CreateOffer produces the local session description of an
	// offer-initiating transport.
	CreateOffer() (string, error)

	// HandleOffer applies the remote offer and produces the answer.
	HandleOffer(sdp string) (string, error)

	// HandleAnswer applies the remote answer.
	HandleAnswer(sdp string) error

	// AddCandidate applies a remote connectivity candidate. The remote
	// description must already be set.
	AddCandidate(candidate json.RawMessage) error

	Close() error
}

// Factory creates transport instances. Callbacks may fire from
// transport-internal goroutines.
type Factory interface {
	NewTransport(capture Capture, onCandidate func(json.RawMessage), onState func(ConnState)) (Transport, error)
}

// PionFactory builds transports on pion/webrtc. The remote peer's audio
// is written to sink as raw RTP.
type PionFactory struct {
	iceServers []webrtc.ICEServer
	sink       io.Writer
}

func NewPionFactory(iceServers []webrtc.ICEServer, sink io.Writer) *PionFactory {
	return &PionFactory{
		iceServers: iceServers,
		sink:       sink,
	}
}

func (f *PionFactory) NewTransport(capture Capture, onCandidate func(json.RawMessage), onState func(ConnState)) (Transport, error) {
	pc, err := webrtc.NewPeerConnection(
		webrtc.Configuration{
			ICEServers: f.iceServers,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	if oc, ok := capture.(*OpusCapture); ok && oc != nil {
		if _, err = pc.AddTrack(oc.track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio track: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			slog.Error("marshal local candidate", slog.Any(constant.Error, err))
			return
		}

		onCandidate(payload)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			onState(ConnStateConnected)
		case webrtc.PeerConnectionStateDisconnected:
			onState(ConnStateDisconnected)
		case webrtc.PeerConnectionStateFailed:
			onState(ConnStateFailed)
		case webrtc.PeerConnectionStateClosed:
			onState(ConnStateClosed)
		default:
		}
	})

	if f.sink != nil {
		sink := f.sink
		pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			if track.Kind() == webrtc.RTPCodecTypeAudio {
				go renderRemoteAudio(track, sink)
			}
		})
	}

	return &pionTransport{pc: pc}, nil
}

type pionTransport struct {
	pc *webrtc.PeerConnection
}

func (t *pionTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	if err = t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	return t.pc.LocalDescription().SDP, nil
}

func (t *pionTransport) HandleOffer(sdp string) (string, error) {
	err := t.pc.SetRemoteDescription(
		webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  sdp,
		},
	)
	if err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	if err = t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	return t.pc.LocalDescription().SDP, nil
}

func (t *pionTransport) HandleAnswer(sdp string) error {
	err := t.pc.SetRemoteDescription(
		webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  sdp,
		},
	)
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	return nil
}

func (t *pionTransport) AddCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}

	if err := t.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}

	return nil
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/duocall/duocall/internal/application/constant"
)

// Capture is the local audio resource owned by exactly one session. It
// is released on every exit path.
type Capture interface {
	Close() error
}

// Acquirer obtains the local audio resource. Acquisition failures wrap
// ErrMediaUnavailable with a cause sentinel.
type Acquirer interface {
	Acquire(ctx context.Context) (Capture, error)
}

// OpusCapture is an opus RTP track fed by an external audio source via
// WriteRTP.
type OpusCapture struct {
	track  *webrtc.TrackLocalStaticRTP
	closed bool
}

type opusAcquirer struct{}

// NewOpusAcquirer returns an Acquirer producing OpusCapture tracks.
func NewOpusAcquirer() Acquirer {
	return opusAcquirer{}
}

func (opusAcquirer) Acquire(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "duocall",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrMediaUnavailable, ErrUnsupportedContext, err)
	}

	return &OpusCapture{track: track}, nil
}

// WriteRTP feeds one packet of captured audio into the track.
func (c *OpusCapture) WriteRTP(pkt *rtp.Packet) error {
	if c.closed {
		return errors.New("capture closed")
	}

	return c.track.WriteRTP(pkt)
}

func (c *OpusCapture) Close() error {
	// The track itself is torn down with the transport it was
	// attached to.
	c.closed = true
	return nil
}

// renderRemoteAudio copies the peer's RTP audio into sink until the
// track ends.
func renderRemoteAudio(track *webrtc.TrackRemote, sink io.Writer) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("RTP read error", slog.Any(constant.Error, err))
			}

			return
		}

		data, err := pkt.Marshal()
		if err != nil {
			slog.Error("marshal RTP packet", slog.Any(constant.Error, err))
			continue
		}

		if _, err = sink.Write(data); err != nil {
			return
		}
	}
}

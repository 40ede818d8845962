package session

// State is the lifecycle position of a peer session.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateJoining
	StateWaitingForPeer
	StateNegotiating
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring-media"
	case StateJoining:
		return "joining"
	case StateWaitingForPeer:
		return "waiting-for-peer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

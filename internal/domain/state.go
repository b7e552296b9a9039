package domain

// ConnState is the lifecycle state of a connection.
//
// Connecting -> (auth success) -> Authenticated -> (registered) -> Open;
// Open -> (ping timeout | explicit close | transport error) -> Closing -> Closed.
// Closed is terminal: a closed connection is always unregistered and never
// the target of a future send.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

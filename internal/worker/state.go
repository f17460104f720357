package worker

// State is the consumer worker's lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConsuming
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConsuming:
		return "consuming"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

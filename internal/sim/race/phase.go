package race

// Phase is the race session's position in its lifecycle.
type Phase uint8

const (
	WaitingToStart Phase = iota
	Countdown
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case WaitingToStart:
		return "WAITING_TO_START"
	case Countdown:
		return "COUNTDOWN"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Timed reports whether the session has a start timestamp in this phase.
func (p Phase) Timed() bool { return p == Running || p == Finished }

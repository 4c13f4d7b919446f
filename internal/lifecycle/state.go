package lifecycle

// State is the process-level phase of a run.
type State string

const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateTerminated  State = "terminated"
)

// canTransition reports whether from -> to is a legal move. Every path to
// terminated passes through interrupted, which is where cleanup runs.
func canTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateDownloading
	case StateDownloading:
		return to == StateCompleted || to == StateInterrupted
	case StateCompleted:
		return to == StateInterrupted
	case StateInterrupted:
		return to == StateTerminated
	default:
		return false
	}
}

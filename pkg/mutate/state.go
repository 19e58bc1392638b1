package mutate

// State represents the lifecycle of a single mutation as observed by the
// UI adapter driving it.
type State int

const (
	// StateIdle is the initial state before the mutation is triggered.
	StateIdle State = iota

	// StateRunning indicates the remote call is in progress.
	StateRunning

	// StateSuccess indicates the mutation committed.
	StateSuccess

	// StateError indicates the mutation failed and was rolled back.
	StateError
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Kind identifies the mutation operation.
type Kind int

const (
	KindCreate Kind = iota
	KindUpdate
	KindDelete
)

// String returns the kind's wire/metric label.
func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

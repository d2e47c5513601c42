package auth

// State is the position of an orchestrator in its login state machine:
//
//	Idle -> Checking -> Skipped
//	                 -> AwaitingCredential -> Exchanging -> Success | Failed
type State int

const (
	StateIdle State = iota
	StateChecking
	StateSkipped
	StateAwaitingCredential
	StateExchanging
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateSkipped:
		return "skipped"
	case StateAwaitingCredential:
		return "awaiting_credential"
	case StateExchanging:
		return "exchanging"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether the state ends a mount.
func (s State) Terminal() bool {
	return s == StateSkipped || s == StateSuccess || s == StateFailed
}

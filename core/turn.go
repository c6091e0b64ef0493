package core

// TurnToken marks which party currently holds the right to speak. Exactly
// one value exists per session at any instant; only the turn coordinator
// writes it, everything else reads.
type TurnToken int32

const (
	TurnIdle TurnToken = iota
	TurnUser
	TurnAgent
)

func (t TurnToken) String() string {
	switch t {
	case TurnIdle:
		return "idle"
	case TurnUser:
		return "user"
	case TurnAgent:
		return "agent"
	default:
		return "unknown"
	}
}

package turn

import "voiceturn/core"

// TokenChangedEvent announces a turn-token transition. Informational; the
// coordinator remains the only writer.
type TokenChangedEvent struct {
	Token core.TurnToken
}

func (e *TokenChangedEvent) GetId() string {
	return "turn.token_changed"
}

// InterruptIssuedEvent fires when a barge-in caused an interrupt command to
// be dispatched to the avatar. At most one per agent turn.
type InterruptIssuedEvent struct {
	Generation uint64
}

func (e *InterruptIssuedEvent) GetId() string {
	return "turn.interrupt_issued"
}

package conversation

// UserTranscriptEvent carries the final transcript of one utterance after
// it has been appended to the history.
type UserTranscriptEvent struct {
	Text string
}

func (e *UserTranscriptEvent) GetId() string {
	return "conversation.user_transcript"
}

// ReplyDispatchedEvent fires when an assistant reply has been handed to the
// avatar speech service. The turn token is already held by the agent.
type ReplyDispatchedEvent struct {
	Text string
}

func (e *ReplyDispatchedEvent) GetId() string {
	return "conversation.reply_dispatched"
}

// ReplyDiscardedEvent fires when a reply arrived after a barge-in
// invalidated its turn. The text is dropped, never spoken.
type ReplyDiscardedEvent struct {
	Text string
}

func (e *ReplyDiscardedEvent) GetId() string {
	return "conversation.reply_discarded"
}

// TurnFailedEvent fires when one utterance pipeline failed on an external
// call. Recoverable: the session returns to ready and the user may simply
// speak again.
type TurnFailedEvent struct {
	Stage string // transcription | conversation | speech
	Error string
}

func (e *TurnFailedEvent) GetId() string {
	return "conversation.turn_failed"
}

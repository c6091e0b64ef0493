package remote

import "voiceturn/core"

// Events in this package originate from the remote media session. The
// signaling client pushes them to the pipeline top as they arrive.

type AgentTalkingStartedEvent struct{}

func (e *AgentTalkingStartedEvent) GetId() string {
	return "remote.agent_talking_started"
}

type AgentTalkingStoppedEvent struct{}

func (e *AgentTalkingStoppedEvent) GetId() string {
	return "remote.agent_talking_stopped"
}

type TrackSubscribedEvent struct {
	Track core.TrackHandle
}

func (e *TrackSubscribedEvent) GetId() string {
	return "remote.track_subscribed"
}

type TrackUnsubscribedEvent struct {
	Track core.TrackHandle
}

func (e *TrackUnsubscribedEvent) GetId() string {
	return "remote.track_unsubscribed"
}

// TransportClosedEvent fires when the signaling channel drops. Fatal to the
// session unless a close is already in progress.
type TransportClosedEvent struct {
	Error string
}

func (e *TransportClosedEvent) GetId() string {
	return "remote.transport_closed"
}

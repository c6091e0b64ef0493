package turn

import (
	"sync"

	"voiceturn/core"
)

// Coordinator is the single authority over the session's TurnToken. All
// writes go through its mutex; everything else only reads.
//
// The generation counter increments on every user speech start. An
// utterance pipeline captures the generation it was started for, and a
// reply may only take the agent turn if that generation is still current;
// this is what discards stale replies after a barge-in.
type Coordinator struct {
	mu            sync.Mutex
	token         core.TurnToken
	generation    uint64
	interruptSent bool // at most one interrupt per agent turn
}

func NewCoordinator() *Coordinator {
	return &Coordinator{token: core.TurnIdle}
}

func (c *Coordinator) Token() core.TurnToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// OnUserSpeechStarted records a user turn start. It returns the new
// generation and whether an interrupt must be issued: true only when the
// agent held the token and has not yet been interrupted this turn.
func (c *Coordinator) OnUserSpeechStarted() (gen uint64, interrupt bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	interrupt = c.token == core.TurnAgent && !c.interruptSent
	if interrupt {
		c.interruptSent = true
	}
	c.token = core.TurnUser
	return c.generation, interrupt
}

// OnUserSpeechStopped releases the user turn. The token stays idle until
// the orchestrator produces a reply.
func (c *Coordinator) OnUserSpeechStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == core.TurnUser {
		c.token = core.TurnIdle
	}
}

// BeginAgentTurn hands the token to the agent atomically with reply
// dispatch. It fails when gen is no longer current (a barge-in superseded
// the pipeline) or when the token is not idle.
func (c *Coordinator) BeginAgentTurn(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.token != core.TurnIdle {
		return false
	}
	c.token = core.TurnAgent
	c.interruptSent = false
	return true
}

// EndAgentTurn releases the token after the agent finished or failed to
// speak.
func (c *Coordinator) EndAgentTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == core.TurnAgent {
		c.token = core.TurnIdle
	}
}

// OnAgentTalkingStarted handles the remote "agent started talking" signal.
// The token moves to the agent only from idle; a user turn is never
// silently overwritten.
func (c *Coordinator) OnAgentTalkingStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == core.TurnIdle {
		c.token = core.TurnAgent
		c.interruptSent = false
	}
}

// OnAgentTalkingStopped handles the remote "agent stopped talking" signal.
func (c *Coordinator) OnAgentTalkingStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == core.TurnAgent {
		c.token = core.TurnIdle
	}
}

// Reset returns the coordinator to idle and bumps the generation so any
// in-flight pipeline from before the reset is invalidated.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.token = core.TurnIdle
	c.interruptSent = false
}

package factories

import (
	"voiceturn/core"
	conversationh "voiceturn/handlers/conversation"
	recordingh "voiceturn/handlers/recording"
	turnh "voiceturn/handlers/turn"
	vadh "voiceturn/handlers/vad"
	"voiceturn/runner"
	"voiceturn/session"
	"voiceturn/vad/energy"
)

// PipelineServices are the external dependencies the handler chain calls
// out to. Production wiring uses the OpenAI and avatar services; tests
// substitute fakes.
type PipelineServices struct {
	Transcriber conversationh.TranscriptionService
	LLM         conversationh.ConversationService
	Speech      conversationh.SpeechService
	Interrupter turnh.Interrupter
}

// Pipeline bundles the built handler chain with the shared components the
// lifecycle needs direct access to.
type Pipeline struct {
	Runner      *runner.Runner
	Coordinator *turnh.Coordinator
	VAD         *vadh.VADHandler
	Recording   *recordingh.RecordingHandler
	State       *session.StateHandler
}

// BuildPipeline assembles the handler chain for one session:
// VAD -> Turn -> Recording -> Conversation -> State.
// The order is load-bearing: the turn handler fires the barge-in interrupt
// before the recorder sees the speech start, and the state handler observes
// everything last.
func BuildPipeline(settings SettingsConfig, services PipelineServices, sess *session.Session) (*Pipeline, error) {
	logger := sess.Logger

	detector := energy.NewDetector(settings.VAD.DetectorConfig())
	coordinator := turnh.NewCoordinator()

	vadHandler := vadh.NewVADHandler(detector, logger)
	turnHandler := turnh.NewTurnHandler(coordinator, services.Interrupter, turnh.DefaultConfig(), logger)
	recordingHandler := recordingh.NewRecordingHandler(recordingh.DefaultConfig(), logger)
	conversationHandler := conversationh.NewConversationHandler(
		services.Transcriber,
		services.LLM,
		services.Speech,
		coordinator,
		sess.History,
		conversationh.DefaultConfig(),
		logger,
	)
	stateHandler := session.NewStateHandler(sess.Machine, logger)

	handlers := []core.IHandler{
		vadHandler,
		turnHandler,
		recordingHandler,
		conversationHandler,
		stateHandler,
	}

	return &Pipeline{
		Runner:      runner.NewRunner(handlers, logger),
		Coordinator: coordinator,
		VAD:         vadHandler,
		Recording:   recordingHandler,
		State:       stateHandler,
	}, nil
}

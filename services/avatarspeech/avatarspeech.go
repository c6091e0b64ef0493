package avatarspeech

import (
	"context"

	"voiceturn/core"
	"voiceturn/transports/avatar"
)

// Service drives the avatar renderer: replies go out as verbatim speech
// tasks, barge-ins as interrupt commands. It is a thin adapter over the
// session transport so the orchestrator and turn handler stay
// provider-agnostic.
type Service struct {
	transport *avatar.Transport
	logger    *core.Logger
}

func NewService(transport *avatar.Transport, logger *core.Logger) *Service {
	return &Service{transport: transport, logger: logger}
}

func (s *Service) Speak(ctx context.Context, text string) error {
	if err := s.transport.SendTask(ctx, text); err != nil {
		return core.NewServiceError(core.ServiceSpeech, err)
	}
	return nil
}

func (s *Service) Interrupt(ctx context.Context) error {
	if err := s.transport.Interrupt(ctx); err != nil {
		return core.NewServiceError(core.ServiceSpeech, err)
	}
	s.logger.Debug("avatar speech interrupted")
	return nil
}

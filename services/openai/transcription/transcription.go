package transcription

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"voiceturn/core"
	"voiceturn/utils/audio"
)

// Config holds the configuration for the Whisper transcription service.
type Config struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// Service transcribes captured utterances with OpenAI's audio API. Each
// utterance is wrapped in a WAV container and submitted as one request; the
// utterance is consumed exactly once and never persisted.
type Service struct {
	client *openai.Client
	model  string
	lang   string
	logger *core.Logger
}

func NewService(config Config, logger *core.Logger) (*Service, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("transcription: API key is required")
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &Service{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		lang:   config.Language,
		logger: logger,
	}, nil
}

func (s *Service) Transcribe(ctx context.Context, utt *core.Utterance) (string, error) {
	if utt == nil || len(utt.Frames) == 0 {
		return "", core.NewServiceError(core.ServiceTranscription, fmt.Errorf("utterance is empty"))
	}

	wav, err := audio.EncodeWAV(utt.PCM16(), utt.SampleRate(), 1)
	if err != nil {
		return "", core.NewServiceError(core.ServiceTranscription, fmt.Errorf("encode utterance: %w", err))
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		Language: s.lang,
		FilePath: utt.ID + ".wav",
		Reader:   bytes.NewReader(wav),
	})
	if err != nil {
		return "", core.NewServiceError(core.ServiceTranscription, err)
	}

	s.logger.With(map[string]any{
		"utterance_id": utt.ID,
		"duration_s":   utt.Duration().Seconds(),
	}).Debug("utterance transcribed")
	return resp.Text, nil
}

package conversation

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"voiceturn/core"
)

// Config holds the configuration for the chat completion service.
type Config struct {
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
	BaseURL      string
}

// Service produces assistant replies with OpenAI chat completions. The full
// ordered history goes into every request so the model sees the whole
// conversation.
type Service struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	logger       *core.Logger
}

func NewService(config Config, logger *core.Logger) (*Service, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("conversation: API key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &Service{
		client:       openai.NewClientWithConfig(clientConfig),
		model:        config.Model,
		maxTokens:    config.MaxTokens,
		temperature:  config.Temperature,
		systemPrompt: config.SystemPrompt,
		logger:       logger,
	}, nil
}

func (s *Service) Complete(ctx context.Context, history []core.ConversationMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if s.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.systemPrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    convertRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", core.NewServiceError(core.ServiceConversation, err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewServiceError(core.ServiceConversation, fmt.Errorf("no choices in completion response"))
	}

	reply := resp.Choices[0].Message.Content
	s.logger.With(map[string]any{
		"history_len": len(history),
		"reply_len":   len(reply),
	}).Debug("completion produced")
	return reply, nil
}

func convertRole(role core.MessageRole) string {
	switch role {
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

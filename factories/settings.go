package factories

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"voiceturn/device/wsmic"
	"voiceturn/stores/webhook"
	"voiceturn/transports/avatar"
	"voiceturn/vad/energy"
)

// VADSettings tunes the energy activity detector.
type VADSettings struct {
	ActivationThreshold float64 `json:"activation_threshold,omitempty"`
	SilenceTimeoutMS    int     `json:"silence_timeout_ms,omitempty"`
	HumFilterHz         float64 `json:"hum_filter_hz,omitempty"`
	SampleRate          int     `json:"sample_rate,omitempty"`
}

// DetectorConfig maps the settings onto the detector's config, falling back
// to detector defaults for unset fields.
func (v VADSettings) DetectorConfig() energy.Config {
	cfg := energy.DefaultConfig()
	if v.ActivationThreshold > 0 {
		cfg.ActivationThreshold = v.ActivationThreshold
	}
	if v.SilenceTimeoutMS > 0 {
		cfg.SilenceTimeout = time.Duration(v.SilenceTimeoutMS) * time.Millisecond
	}
	if v.HumFilterHz > 0 {
		cfg.HumFilterHz = v.HumFilterHz
	}
	if v.SampleRate > 0 {
		cfg.SampleRate = v.SampleRate
	}
	return cfg
}

// OpenAISettings configures the transcription and completion services. The
// API key comes from the environment, never from settings.json.
type OpenAISettings struct {
	ChatModel       string  `json:"chat_model,omitempty"`
	TranscribeModel string  `json:"transcribe_model,omitempty"`
	Language        string  `json:"language,omitempty"`
	SystemPrompt    string  `json:"system_prompt,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float32 `json:"temperature,omitempty"`
	BaseURL         string  `json:"base_url,omitempty"`
}

// StoreSettings selects where finished conversations are persisted.
type StoreSettings struct {
	// Kind is "webhook", "transcript", or "none".
	Kind          string         `json:"kind,omitempty"`
	Webhook       webhook.Config `json:"webhook,omitempty"`
	TranscriptDir string         `json:"transcript_dir,omitempty"`

	// GoalDir is where per-session goal extractions are written. Empty
	// disables goal extraction.
	GoalDir string `json:"goal_dir,omitempty"`
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	Avatar *avatar.Config `json:"avatar,omitempty"`
	Mic    *wsmic.Config  `json:"mic,omitempty"`
	VAD    VADSettings    `json:"vad,omitempty"`
	OpenAI OpenAISettings `json:"openai,omitempty"`
	Store  StoreSettings  `json:"store,omitempty"`
	LogDir string         `json:"log_dir,omitempty"`
	TickMS int            `json:"tick_ms,omitempty"`

	// SessionTimeoutMS bounds the whole session; 0 disables the bound.
	SessionTimeoutMS int `json:"session_timeout_ms,omitempty"`
}

// APIKeys carries secrets loaded from the environment.
type APIKeys struct {
	OpenAI string
	Avatar string
}

// InjectAPIKeys copies environment-provided keys into the relevant configs.
func (c *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	if c.Avatar != nil && c.Avatar.APIKey == "" {
		c.Avatar.APIKey = keys.Avatar
	}
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Avatar:           avatar.DefaultConfig(),
		Mic:              wsmic.DefaultConfig(),
		LogDir:           "./logs",
		TickMS:           20,
		SessionTimeoutMS: 3000000,
		Store:            StoreSettings{Kind: "transcript", TranscriptDir: "./transcripts", GoalDir: "./goals"},
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, layering
// it over the defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	if cfg.Avatar == nil {
		cfg.Avatar = avatar.DefaultConfig()
	}
	if cfg.Mic == nil {
		cfg.Mic = wsmic.DefaultConfig()
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 20
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

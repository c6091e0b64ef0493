package avatar

// Config holds configuration for the streaming-avatar provider.
type Config struct {
	// API key for REST authentication.
	APIKey string `json:"api_key,omitempty"`

	// REST base URL (default: https://api.heygen.com/v1).
	APIBaseURL string `json:"api_base_url,omitempty"`

	// Avatar and voice selection for new sessions.
	AvatarID string `json:"avatar_id,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`

	// Session quality requested from the provider.
	Quality string `json:"quality,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL: "https://api.heygen.com/v1",
		Quality:    "medium",
	}
}

package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"voiceturn/core"
	"voiceturn/factories"
)

func main() {
	var settingsPath string
	flag.StringVar(&settingsPath, "settings", "", "path to settings.json (default: $SETTINGS_PATH or ./settings.json)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settings := loadSettings(settingsPath)
	keys := factories.APIKeys{
		OpenAI: os.Getenv("OPENAI_API_KEY"),
		Avatar: os.Getenv("AVATAR_API_KEY"),
	}

	manager, err := factories.NewSessionManager(settings, keys, core.GetLogger())
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Fatal("failed to build session manager")
	}

	sess, err := manager.Open(ctx)
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Fatal("failed to open session")
	}
	core.GetLogger().With(map[string]any{"session_id": sess.ID}).Info("session running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		core.GetLogger().With(map[string]any{"signal": sig.String()}).Info("shutting down")
		manager.Close()
	case <-manager.Done():
	}
	<-manager.Done()
}

// loadSettings loads SettingsConfig from SETTINGS_JSON_B64, the -settings
// flag, or the default settings.json path, falling back to defaults.
func loadSettings(flagPath string) factories.SettingsConfig {
	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			core.GetLogger().With(map[string]any{"error": err}).Error("failed to decode SETTINGS_JSON_B64")
			return factories.DefaultSettingsConfig()
		}
		settings, err := factories.SettingsConfigFromJSON(data)
		if err != nil {
			core.GetLogger().With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
			return factories.DefaultSettingsConfig()
		}
		core.GetLogger().Info("loaded settings from SETTINGS_JSON_B64")
		return settings
	}

	path := flagPath
	if path == "" {
		path = getEnv("SETTINGS_PATH", "./settings.json")
	}
	settings, err := factories.SettingsConfigFromFile(path)
	if err != nil {
		core.GetLogger().With(map[string]any{"path": path, "error": err}).Warn("failed to load settings, using defaults")
		return factories.DefaultSettingsConfig()
	}
	return settings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RuntimeConfig holds preferences the user can change from the CLI.
// Only non-secret values are allowed
type RuntimeConfig struct {
	mu   sync.RWMutex
	path string
	base *Config
	data RuntimeData
}

// RuntimeData is the serializable runtime config
type RuntimeData struct {
	Voice          string `json:"voice,omitempty"`
	SpeechProvider string `json:"speech_provider,omitempty"`
	TTSVoice       string `json:"tts_voice,omitempty"`
	Player         string `json:"player,omitempty"`
}

// AllowedKeys defines which config keys can be changed at runtime
var AllowedKeys = map[string]string{
	"voice":           "Speak replies aloud (true or false)",
	"speech_provider": "Speech backend (agent or openai)",
	"tts_voice":       "OpenAI voice name (e.g., nova, alloy, shimmer)",
	"player":          "Audio player command (e.g., mpg123 -q, ffplay -nodisp -autoexit)",
}

// NewRuntimeConfig creates a runtime config, loading from file if exists.
// Unset keys fall back to base.
func NewRuntimeConfig(dataDir string, base *Config) (*RuntimeConfig, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	rc := &RuntimeConfig{
		path: filepath.Join(dataDir, "runtime_config.json"),
		base: base,
	}

	// load existing config if present
	if data, err := os.ReadFile(rc.path); err == nil {
		json.Unmarshal(data, &rc.data)
	}

	// drop values that no longer validate
	rc.validateAndFix()

	return rc, nil
}

func (rc *RuntimeConfig) validateAndFix() {
	changed := false

	if rc.data.Voice != "" && validate("voice", rc.data.Voice) != nil {
		rc.data.Voice = ""
		changed = true
	}
	if rc.data.SpeechProvider != "" && validate("speech_provider", rc.data.SpeechProvider) != nil {
		rc.data.SpeechProvider = ""
		changed = true
	}

	if changed {
		rc.save()
	}
}

func validate(key, value string) error {
	switch key {
	case "voice":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("voice must be true or false, got %q", value)
		}
	case "speech_provider":
		if value != "agent" && value != "openai" {
			return fmt.Errorf("speech_provider must be agent or openai, got %q", value)
		}
	}
	return nil
}

// Get returns a runtime config value, falling back to the loaded config
func (rc *RuntimeConfig) Get(key string) string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	switch key {
	case "voice":
		if rc.data.Voice != "" {
			return rc.data.Voice
		}
		return strconv.FormatBool(rc.base.Voice.Enabled)
	case "speech_provider":
		if rc.data.SpeechProvider != "" {
			return rc.data.SpeechProvider
		}
		return rc.base.Voice.Provider
	case "tts_voice":
		if rc.data.TTSVoice != "" {
			return rc.data.TTSVoice
		}
		return rc.base.Voice.TTSVoice
	case "player":
		if rc.data.Player != "" {
			return rc.data.Player
		}
		return rc.base.Voice.Player
	}
	return ""
}

// VoiceEnabled is Get("voice") as a bool.
func (rc *RuntimeConfig) VoiceEnabled() bool {
	v, _ := strconv.ParseBool(rc.Get("voice"))
	return v
}

// Set updates a runtime config value
func (rc *RuntimeConfig) Set(key, value string) error {
	if _, ok := AllowedKeys[key]; !ok {
		return fmt.Errorf("key %q is not allowed for runtime config", key)
	}
	if value != "" {
		if err := validate(key, value); err != nil {
			return err
		}
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	switch key {
	case "voice":
		rc.data.Voice = value
	case "speech_provider":
		rc.data.SpeechProvider = value
	case "tts_voice":
		rc.data.TTSVoice = value
	case "player":
		rc.data.Player = value
	default:
		return fmt.Errorf("unknown key: %s", key)
	}

	return rc.save()
}

// Reset clears a runtime config value, reverting to the loaded config
func (rc *RuntimeConfig) Reset(key string) error {
	return rc.Set(key, "")
}

// All returns all current runtime values (with fallbacks)
func (rc *RuntimeConfig) All() map[string]string {
	result := make(map[string]string)
	for key := range AllowedKeys {
		result[key] = rc.Get(key)
	}
	return result
}

// Overrides returns only the values set at runtime
func (rc *RuntimeConfig) Overrides() map[string]string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	result := make(map[string]string)
	if rc.data.Voice != "" {
		result["voice"] = rc.data.Voice
	}
	if rc.data.SpeechProvider != "" {
		result["speech_provider"] = rc.data.SpeechProvider
	}
	if rc.data.TTSVoice != "" {
		result["tts_voice"] = rc.data.TTSVoice
	}
	if rc.data.Player != "" {
		result["player"] = rc.data.Player
	}
	return result
}

func (rc *RuntimeConfig) save() error {
	data, err := json.MarshalIndent(rc.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(rc.path, data, 0644)
}
